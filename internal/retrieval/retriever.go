// Package retrieval finds the context passages most similar to a question.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/ragbench/internal/models"
)

// DefaultTopK is used when a caller passes a non-positive k.
const DefaultTopK = 5

// Embedder turns a question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store runs nearest-neighbour search over passage embeddings.
type Store interface {
	SearchPassages(ctx context.Context, embedding []float32, k int) ([]models.ScoredPassage, error)
}

// Retriever embeds questions and queries the passage store.
type Retriever struct {
	embed  Embedder
	store  Store
	topK   int
	logger *slog.Logger
}

// New creates a retriever. topK <= 0 uses DefaultTopK.
func New(embed Embedder, store Store, topK int, logger *slog.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embed: embed, store: store, topK: topK, logger: logger}
}

// Retrieve returns at most k passage texts, most similar first. A store holding
// fewer than k passages yields fewer results. k <= 0 uses the retriever's default.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]string, error) {
	if k <= 0 {
		k = r.topK
	}

	vec, err := r.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := r.store.SearchPassages(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}
	if len(hits) > k {
		hits = hits[:k]
	}

	passages := make([]string, len(hits))
	ids := make([]string, 0, len(hits))
	for i, h := range hits {
		passages[i] = h.Content
		if id, err := models.RecordIDString(h.ID); err == nil {
			ids = append(ids, id)
		}
	}
	r.logger.Debug("retrieved contexts", "k", k, "hits", len(passages), "ids", ids)
	return passages, nil
}
