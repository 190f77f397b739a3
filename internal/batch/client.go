package batch

import (
	"context"

	"github.com/raphaelgruber/ragbench/internal/config"
	"github.com/sashabaranov/go-openai"
)

// API is the subset of the OpenAI client the batch flow uses.
// *openai.Client satisfies it.
type API interface {
	CreateFileBytes(ctx context.Context, request openai.FileBytesRequest) (openai.File, error)
	CreateBatch(ctx context.Context, request openai.CreateBatchRequest) (openai.BatchResponse, error)
	RetrieveBatch(ctx context.Context, batchID string) (openai.BatchResponse, error)
	GetFileContent(ctx context.Context, fileID string) (openai.RawResponse, error)
}

var _ API = (*openai.Client)(nil)

// NewOpenAIClient builds the Batch API client from configuration.
func NewOpenAIClient(cfg config.Config) (*openai.Client, error) {
	if err := cfg.Require(config.CredOpenAI); err != nil {
		return nil, err
	}
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}
	return openai.NewClientWithConfig(clientConfig), nil
}
