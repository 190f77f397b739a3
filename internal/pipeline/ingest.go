package pipeline

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/ragbench/internal/db"
	"github.com/raphaelgruber/ragbench/internal/models"
)

// DefaultIngestBatchSize is the number of passages embedded per request.
const DefaultIngestBatchSize = 64

// IngestStats summarises an ingestion.
type IngestStats struct {
	Documents int
	Stored    int
}

// Ingest embeds every document and stores it. Re-ingesting overwrites
// passages by document ID. wipe clears the store first, which is required
// when the embedding model or dimension changed since the last ingestion.
func (p *Pipeline) Ingest(ctx context.Context, docs []models.Document, wipe bool) (IngestStats, error) {
	if p.deps.Embedder == nil || p.deps.Store == nil {
		return IngestStats{}, fmt.Errorf("%w: embedder and store", ErrBackendUnavailable)
	}
	embedder, store := p.deps.Embedder, p.deps.Store
	dim := embedder.Dimension()

	if wipe {
		if err := store.WipeData(ctx); err != nil {
			return IngestStats{}, err
		}
		if err := store.DropIndex(ctx); err != nil {
			return IngestStats{}, err
		}
	} else {
		prev, err := store.GetCollection(ctx, db.DefaultCollection)
		if err != nil {
			return IngestStats{}, err
		}
		if prev != nil && (prev.Dimension != dim || prev.EmbedModel != embedder.Model()) {
			return IngestStats{}, fmt.Errorf("%w: store built with %s (%d), embedder is %s (%d); re-run with --wipe",
				db.ErrDimensionMismatch, prev.EmbedModel, prev.Dimension, embedder.Model(), dim)
		}
	}

	if err := store.InitSchema(ctx, dim); err != nil {
		return IngestStats{}, err
	}

	stats := IngestStats{Documents: len(docs)}
	size := p.opts.IngestBatchSize
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		chunk := docs[start:end]

		texts := make([]string, len(chunk))
		for i, d := range chunk {
			texts[i] = d.Content
		}
		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("embed documents %s..%s: %w", chunk[0].ID, chunk[len(chunk)-1].ID, err)
		}
		if err := store.UpsertPassages(ctx, chunk, vecs); err != nil {
			return stats, err
		}
		fmt.Fprintf(p.out, "Ingested %d/%d contexts\n", end, len(docs))
	}

	count, err := store.CountPassages(ctx)
	if err != nil {
		return stats, err
	}
	stats.Stored = count

	if err := store.SaveCollection(ctx, db.Collection{
		Name:       db.DefaultCollection,
		EmbedModel: embedder.Model(),
		Dimension:  dim,
		Documents:  count,
	}); err != nil {
		return stats, err
	}

	p.logger.Info("ingestion complete", "documents", len(docs), "stored", count, "model", embedder.Model())
	fmt.Fprintf(p.out, "Stored %d contexts\n", count)
	return stats, nil
}
