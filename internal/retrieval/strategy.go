package retrieval

import (
	"fmt"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/embedding"
	"github.com/hyperjump/tutor/internal/keyword"
	"github.com/hyperjump/tutor/internal/vector"
)

// Strategy names.
const (
	StrategyVector  = "vector"
	StrategyKeyword = "keyword"
)

// Deps are the collaborators a strategy may need. Embedder and Collection are only
// required by the vector strategy; a nil Corpus means the built-in one.
type Deps struct {
	Embedder   embedding.Embedder
	Collection *vector.Collection
	Corpus     []keyword.Entry
	Options    []Option
}

// New builds the named strategy, already wrapped with tracing.
func New(strategy string, deps Deps) (Retriever, error) {
	switch strategy {
	case StrategyVector:
		if deps.Embedder == nil {
			return nil, apperr.NotConfigured("retrieval", "embedding provider")
		}
		if deps.Collection == nil {
			return nil, apperr.NotConfigured("retrieval", "vector index")
		}
		return Traced(NewVectorRetriever(deps.Embedder, deps.Collection, deps.Options...)), nil
	case StrategyKeyword:
		corpus := deps.Corpus
		if corpus == nil {
			corpus = keyword.DefaultCorpus()
		}
		return Traced(keyword.NewRetriever(corpus)), nil
	default:
		return nil, apperr.New(apperr.KindConfiguration, "retrieval",
			fmt.Errorf("unknown retrieval strategy %q (supported: vector, keyword)", strategy))
	}
}
