package models

import (
	"strings"

	"github.com/hyperjump/tutor/internal/apperr"
)

// SearchQuery is a retrieval request.
type SearchQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// Validate rejects an empty query and normalizes the limit: zero or negative becomes
// defaultLimit, anything above maxLimit is capped. A maxLimit of 0 disables the cap.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	if strings.TrimSpace(q.Query) == "" {
		return apperr.Validation("search", apperr.ErrEmptyQuery)
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}

// CheckQuery validates the arguments of a retrieve call.
func CheckQuery(op, query string, limit int) error {
	if strings.TrimSpace(query) == "" {
		return apperr.Validation(op, apperr.ErrEmptyQuery)
	}
	if limit <= 0 {
		return apperr.Validation(op, apperr.ErrInvalidLimit)
	}
	return nil
}
