package retrieval

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Retriever embeds a query once and ranks the whole memory stream against it.
type Retriever struct {
	store    interfaces.MemoryStore
	embedder Embedder
	scorer   Scorer
	clock    func() time.Time
}

type RetrieverOption func(*Retriever)

func WithClock(clock func() time.Time) RetrieverOption {
	return func(r *Retriever) {
		r.clock = clock
	}
}

func NewRetriever(store interfaces.MemoryStore, embedder Embedder, scorer Scorer, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		store:    store,
		embedder: embedder,
		scorer:   scorer,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the top k memories for queryText. When the query cannot be
// embedded, ranking falls back to recency and importance only.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, k int) ([]Score, error) {
	entries, err := r.store.All(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load memories for retrieval")
	}
	if len(entries) == 0 || k <= 0 {
		return []Score{}, nil
	}

	var query []float64
	if r.embedder != nil && queryText != "" {
		vec, err := r.embedder.Embed(ctx, queryText)
		if err != nil {
			logging.From(ctx).Warn("query embedding failed, ranking without relevance", "error", err)
		} else {
			query = vec
		}
	}

	return r.scorer.Rank(entries, query, r.clock(), k), nil
}
