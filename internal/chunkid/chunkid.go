// Package chunkid provides deterministic chunk identifiers used as upsert keys.
package chunkid

import (
	"crypto/md5" //nolint:gosec // identity, not security
	"strconv"

	"github.com/google/uuid"
)

// For returns the stable id of chunk index of source. The id is the md5 of
// "<source>_<index>" rendered as a UUID, which Qdrant accepts as a point id.
// The same (source, index) always yields the same id, so re-ingesting a document
// overwrites its chunks in place.
func For(source string, index int) string {
	sum := md5.Sum([]byte(source + "_" + strconv.Itoa(index)))
	return uuid.UUID(sum).String()
}

