package retrieval

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/raphaelgruber/ragbench/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lengthEmbedder struct{ err error }

func (e lengthEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

// memStore ranks passages by cosine similarity, like the HNSW index would.
type memStore struct {
	passages []string
	vectors  [][]float32
	gotK     int
}

func (s *memStore) SearchPassages(_ context.Context, q []float32, k int) ([]models.ScoredPassage, error) {
	s.gotK = k
	var hits []models.ScoredPassage
	for i, v := range s.vectors {
		hits = append(hits, models.ScoredPassage{Content: s.passages[i], Score: cosine(q, v)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func newStore() *memStore {
	return &memStore{
		passages: []string{"far", "near", "middle"},
		vectors:  [][]float32{{0, 1}, {1, 0.01}, {1, 1}},
	}
}

func TestRetrieveOrdersBySimilarity(t *testing.T) {
	r := New(lengthEmbedder{}, newStore(), 5, nil)

	got, err := r.Retrieve(context.Background(), "a long question about normandy", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "middle"}, got)
}

func TestRetrieveToleratesLargeK(t *testing.T) {
	r := New(lengthEmbedder{}, newStore(), 5, nil)

	got, err := r.Retrieve(context.Background(), "q", 50)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRetrieveDefaultK(t *testing.T) {
	store := newStore()
	r := New(lengthEmbedder{}, store, 0, nil)

	_, err := r.Retrieve(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, store.gotK)
}

func TestRetrieveEmbedError(t *testing.T) {
	boom := errors.New("boom")
	r := New(lengthEmbedder{err: boom}, newStore(), 5, nil)

	_, err := r.Retrieve(context.Background(), "q", 1)
	assert.ErrorIs(t, err, boom)
}
