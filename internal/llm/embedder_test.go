package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/raphaelgruber/ragbench/internal/config"
	"github.com/raphaelgruber/ragbench/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbeddings struct {
	dim   int
	err   error
	calls int
}

func (f *fakeEmbeddings) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(text))
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbeddings) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func TestEmbedderEmbed(t *testing.T) {
	m := metrics.NewCollector()
	e := &Embedder{model: &fakeEmbeddings{dim: 4}, dimension: 4, modelName: "fake", metrics: m}

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0, 0, 0}, v)
	assert.Equal(t, int64(1), m.Snapshot().Embedding.Count)
}

func TestEmbedderDimensionMismatch(t *testing.T) {
	e := &Embedder{model: &fakeEmbeddings{dim: 3}, dimension: 4, modelName: "fake"}

	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorContains(t, err, "dimension mismatch")

	_, err = e.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestEmbedderBatch(t *testing.T) {
	fake := &fakeEmbeddings{dim: 2}
	e := &Embedder{model: fake, dimension: 2, modelName: "fake"}

	empty, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Zero(t, fake.calls, "empty batch should not call the provider")

	vs, err := e.EmbedBatch(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, float32(3), vs[1][0])
}

func TestEmbedderFatalErrors(t *testing.T) {
	e := &Embedder{model: &fakeEmbeddings{dim: 2, err: errors.New("HTTP 401: invalid api key")}, dimension: 2}

	_, err := e.Embed(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrFatalAPI))
}

func TestNewEmbedderConfig(t *testing.T) {
	_, err := NewEmbedder(config.Config{EmbedProvider: config.ProviderOpenAI, EmbedModel: "text-embedding-3-small"}, nil)
	assert.True(t, errors.Is(err, config.ErrMissingEnv))

	_, err = NewEmbedder(config.Config{EmbedProvider: "bedrock"}, nil)
	assert.ErrorContains(t, err, "unsupported embedding provider")

	e, err := NewEmbedder(config.Config{
		EmbedProvider:  config.ProviderOpenAI,
		OpenAIAPIKey:   "sk-test",
		EmbedModel:     "text-embedding-3-small",
		EmbedDimension: 1536,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", e.Model())
	assert.Equal(t, 1536, e.Dimension())
}
