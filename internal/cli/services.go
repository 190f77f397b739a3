package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/raphaelgruber/ragbench/internal/batch"
	"github.com/raphaelgruber/ragbench/internal/config"
	"github.com/raphaelgruber/ragbench/internal/dataset"
	"github.com/raphaelgruber/ragbench/internal/db"
	"github.com/raphaelgruber/ragbench/internal/llm"
	"github.com/raphaelgruber/ragbench/internal/pipeline"
)

// need selects the clients a command builds.
type need struct {
	store bool // context store and embedder
	batch bool // OpenAI Batch API
	chat  bool // direct Llama endpoint
}

func (n need) credentials() []config.Credential {
	var all []config.Credential
	if n.store {
		all = append(all, cfg.EmbedCredentials()...)
	}
	if n.batch {
		all = append(all, config.CredOpenAI)
	}
	if n.chat {
		all = append(all, config.CredAzure)
	}

	var creds []config.Credential
	seen := map[config.Credential]bool{}
	for _, c := range all {
		if !seen[c] {
			seen[c] = true
			creds = append(creds, c)
		}
	}
	return creds
}

// openStore connects to SurrealDB once per process.
func openStore(ctx context.Context) (*db.Client, error) {
	if dbClient != nil {
		return dbClient, nil
	}
	client, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger, collector)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	dbClient = client
	return dbClient, nil
}

// newPipeline checks every credential up front, then builds the clients n asks for.
func newPipeline(ctx context.Context, n need) (*pipeline.Pipeline, error) {
	if err := cfg.Require(n.credentials()...); err != nil {
		return nil, err
	}

	deps := pipeline.Deps{Logger: logger, Metrics: collector, Out: os.Stdout}
	if n.store {
		embedder, err := llm.NewEmbedder(cfg, collector)
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
		store, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		deps.Embedder, deps.Store = embedder, store
	}
	if n.batch {
		api, err := batch.NewOpenAIClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("init batch client: %w", err)
		}
		deps.API = api
	}
	if n.chat {
		chat, err := llm.NewLlamaChat(cfg, collector)
		if err != nil {
			return nil, fmt.Errorf("init chat client: %w", err)
		}
		deps.Chat = chat
	}

	return pipeline.New(pipeline.OptionsFromConfig(cfg, prompts), deps)
}

// loadDataset reads the configured dataset, or path when set.
func loadDataset(path string) (*dataset.Dataset, error) {
	if path == "" {
		path = cfg.DatasetPath
	}
	ds, err := dataset.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("dataset loaded", "path", path, "version", ds.Version)
	return ds, nil
}

// loadQuestions returns the capped answerable questions of the dataset.
func loadQuestions(path string, limit int) ([]dataset.Question, error) {
	ds, err := loadDataset(path)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = cfg.MaxQuestions
	}
	return ds.PossibleQuestions(limit), nil
}

// defaultLabel names a run after its backend, matching the original file names.
func defaultLabel(b pipeline.Backend) string {
	if b == pipeline.BackendDirect {
		return "llama"
	}
	return "gpt"
}
