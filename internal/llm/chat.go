package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/ragbench/internal/config"
	"github.com/raphaelgruber/ragbench/internal/metrics"
	"github.com/raphaelgruber/ragbench/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completion is one chat response with its token usage.
type Completion struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Chat sends chat-completion requests to an OpenAI-compatible endpoint.
type Chat struct {
	llm         llms.Model
	modelName   string
	temperature float64
	metrics     *metrics.Collector
}

// NewLlamaChat creates a chat client for the Azure ML Studio endpoint serving Llama.
func NewLlamaChat(cfg config.Config, m *metrics.Collector) (*Chat, error) {
	if err := cfg.Require(config.CredAzure); err != nil {
		return nil, err
	}

	model, err := openai.New(
		openai.WithToken(cfg.AzureKey),
		openai.WithBaseURL(cfg.AzureEndpoint),
		openai.WithModel(cfg.LlamaModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create llama client: %w", err)
	}

	return &Chat{
		llm:         model,
		modelName:   cfg.LlamaModel,
		temperature: cfg.Temperature,
		metrics:     m,
	}, nil
}

// Generate sends messages and returns the first choice.
func (c *Chat) Generate(ctx context.Context, messages []models.Message) (Completion, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		role := llms.ChatMessageTypeHuman
		if msg.Role == models.RoleSystem {
			role = llms.ChatMessageTypeSystem
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	start := time.Now()
	response, err := c.llm.GenerateContent(ctx, content, llms.WithTemperature(c.temperature))
	duration := time.Since(start)
	if err != nil {
		slog.Warn("chat completion failed", "model", c.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return Completion{}, fmt.Errorf("generate: %w", wrapFatalError(err))
	}

	if len(response.Choices) == 0 {
		return Completion{}, fmt.Errorf("no response choices")
	}

	choice := response.Choices[0]
	out := Completion{
		Content:      choice.Content,
		InputTokens:  infoInt(choice.GenerationInfo, "PromptTokens"),
		OutputTokens: infoInt(choice.GenerationInfo, "CompletionTokens"),
	}

	if c.metrics != nil {
		c.metrics.RecordLLMUsage(metrics.OpLLMGenerate, duration, int64(out.InputTokens), int64(out.OutputTokens))
	}
	slog.Debug("chat completion", "model", c.modelName, "duration_ms", duration.Milliseconds(),
		"input_tokens", out.InputTokens, "output_tokens", out.OutputTokens)
	return out, nil
}

// Model returns the chat model name.
func (c *Chat) Model() string {
	return c.modelName
}

func infoInt(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
