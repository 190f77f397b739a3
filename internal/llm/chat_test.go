package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/raphaelgruber/ragbench/internal/config"
	"github.com/raphaelgruber/ragbench/internal/metrics"
	"github.com/raphaelgruber/ragbench/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	got      []llms.MessageContent
	response *llms.ContentResponse
	err      error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	return f.response, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestChatGenerate(t *testing.T) {
	fake := &fakeModel{response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        "France",
		GenerationInfo: map[string]any{"PromptTokens": 812, "CompletionTokens": 3},
	}}}}
	m := metrics.NewCollector()
	c := &Chat{llm: fake, modelName: "llama", temperature: 0.2, metrics: m}

	out, err := c.Generate(context.Background(), []models.Message{
		{Role: models.RoleSystem, Content: "be brief"},
		{Role: models.RoleUser, Content: "where is normandy?"},
	})
	require.NoError(t, err)
	assert.Equal(t, Completion{Content: "France", InputTokens: 812, OutputTokens: 3}, out)

	require.Len(t, fake.got, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.got[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.got[1].Role)

	snap := m.Snapshot().LLMGenerate
	require.NotNil(t, snap)
	assert.Equal(t, int64(812), *snap.TotalInputTokens)
}

func TestChatGenerateErrors(t *testing.T) {
	t.Run("no choices", func(t *testing.T) {
		c := &Chat{llm: &fakeModel{response: &llms.ContentResponse{}}}
		_, err := c.Generate(context.Background(), nil)
		assert.ErrorContains(t, err, "no response choices")
	})

	t.Run("quota is fatal", func(t *testing.T) {
		c := &Chat{llm: &fakeModel{err: errors.New("quota exceeded for model")}}
		_, err := c.Generate(context.Background(), nil)
		assert.True(t, errors.Is(err, ErrFatalAPI))
	})

	t.Run("missing token info", func(t *testing.T) {
		c := &Chat{llm: &fakeModel{response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}}
		out, err := c.Generate(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, out.InputTokens)
	})
}

func TestNewLlamaChatRequiresCredentials(t *testing.T) {
	_, err := NewLlamaChat(config.Config{AzureEndpoint: "https://example.inference.ml.azure.com"}, nil)
	assert.True(t, errors.Is(err, config.ErrMissingEnv))
	assert.ErrorContains(t, err, "AZURE_MLSTUDIO_KEY")
}
