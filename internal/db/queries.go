package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/ragbench/internal/metrics"
	"github.com/raphaelgruber/ragbench/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// DefaultCollection names the passage set built from the SQuAD contexts.
const DefaultCollection = "squad_contexts"

// HNSW search breadth; larger than any practical k.
const searchEF = 40

// Collection records the embedding settings a passage set was built with.
type Collection struct {
	Name       string `json:"-"`
	EmbedModel string `json:"embed_model"`
	Dimension  int    `json:"dimension"`
	Documents  int    `json:"documents"`
}

// UpsertPassages stores each document with its embedding, keyed by document ID.
// Re-ingesting the same dataset overwrites rather than duplicates.
func (c *Client) UpsertPassages(ctx context.Context, docs []models.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("%w: %d documents, %d embeddings", ErrCountMismatch, len(docs), len(embeddings))
	}
	defer c.record(metrics.OpDBUpsert, time.Now())

	for i, doc := range docs {
		_, err := surrealdb.Query[any](ctx, c.db, `
			UPSERT type::record("passage", $id) SET
				title = $title,
				position = $position,
				content = $content,
				embedding = $embedding
		`, map[string]any{
			"id":        doc.ID,
			"title":     doc.Title,
			"position":  doc.Position,
			"content":   doc.Content,
			"embedding": embeddings[i],
		})
		if err != nil {
			return fmt.Errorf("upsert passage %s: %w", doc.ID, wrapQueryError(err))
		}
	}
	return nil
}

// SearchPassages returns up to k passages nearest to embedding, most similar first.
// Fewer than k are returned when the table holds fewer passages.
func (c *Client) SearchPassages(ctx context.Context, embedding []float32, k int) ([]models.ScoredPassage, error) {
	if k <= 0 {
		return []models.ScoredPassage{}, nil
	}
	defer c.record(metrics.OpDBSearch, time.Now())

	sql := fmt.Sprintf(`
		SELECT id, title, position, content,
			vector::similarity::cosine(embedding, $emb) AS score
		FROM passage
		WHERE embedding <|%d,%d|> $emb
		ORDER BY score DESC
	`, k, searchEF)

	results, err := surrealdb.Query[[]models.ScoredPassage](ctx, c.db, sql, map[string]any{"emb": embedding})
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.ScoredPassage{}, nil
	}
	hits := (*results)[0].Result
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// GetPassage retrieves a passage by document ID. Returns nil if not found.
func (c *Client) GetPassage(ctx context.Context, id string) (*models.Passage, error) {
	results, err := surrealdb.Query[[]models.Passage](ctx, c.db, `
		SELECT id, title, position, content, created_at FROM type::record("passage", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get passage: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// CountPassages returns the number of stored passages.
func (c *Client) CountPassages(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, c.db, `SELECT count() AS count FROM passage GROUP ALL`, nil)
	if err != nil {
		return 0, fmt.Errorf("count passages: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}

// SaveCollection records the embedding settings used for the stored passages.
func (c *Client) SaveCollection(ctx context.Context, col Collection) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("collection", $name) SET
			embed_model = $embed_model,
			dimension = $dimension,
			documents = $documents
	`, map[string]any{
		"name":        col.Name,
		"embed_model": col.EmbedModel,
		"dimension":   col.Dimension,
		"documents":   col.Documents,
	})
	if err != nil {
		return fmt.Errorf("save collection: %w", wrapQueryError(err))
	}
	return nil
}

// GetCollection returns the named collection record, or nil if it was never saved.
func (c *Client) GetCollection(ctx context.Context, name string) (*Collection, error) {
	results, err := surrealdb.Query[[]Collection](ctx, c.db, `
		SELECT embed_model, dimension, documents FROM type::record("collection", $name)
	`, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	col := (*results)[0].Result[0]
	col.Name = name
	return &col, nil
}
