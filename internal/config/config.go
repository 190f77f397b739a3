// Package config loads ragbench settings from the process environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ErrMissingEnv is returned when a required environment variable is unset.
var ErrMissingEnv = errors.New("missing required environment variable")

// ErrInvalidEnv is returned when an environment variable cannot be parsed.
var ErrInvalidEnv = errors.New("invalid environment variable")

// Credential names a group of environment variables a command depends on.
type Credential int

const (
	// CredOpenAI covers the batch API and OpenAI embeddings.
	CredOpenAI Credential = iota
	// CredAzure covers the Azure ML Studio chat endpoint serving Llama.
	CredAzure
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// OpenAI batch API and judge
	OpenAIAPIKey  string
	OpenAIBaseURL string
	AnswerModel   string
	JudgeModel    string
	Temperature   float64

	// Azure ML Studio (Llama direct path)
	AzureEndpoint string
	AzureKey      string
	LlamaModel    string

	// Embeddings
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int
	OllamaHost     string

	// Evaluation run
	DataDir      string
	DatasetPath  string
	PromptsFile  string
	TopK         int
	MaxQuestions int

	// Batch polling
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	MaxWait         time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// LoadDotEnv seeds the environment from a .env file. A missing file is not an error.
// Variables already present in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables.
// Malformed numeric or duration values are reported together.
func Load() (Config, error) {
	p := &envParser{}

	dataDir := getEnv("RAGBENCH_DATA_DIR", "data")

	cfg := Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "ragbench"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "squad"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		AnswerModel:   getEnv("ANSWER_MODEL", "gpt-4o-mini"),
		JudgeModel:    getEnv("JUDGE_MODEL", "gpt-4o-mini"),
		Temperature:   p.floatVal("RAGBENCH_TEMPERATURE", 0.2),

		AzureEndpoint: os.Getenv("AZURE_MLSTUDIO_ENDPOINT"),
		AzureKey:      os.Getenv("AZURE_MLSTUDIO_KEY"),
		LlamaModel:    getEnv("LLAMA_MODEL", "Meta-Llama-3.1-8B-Instruct"),

		EmbedProvider:  strings.ToLower(getEnv("EMBED_PROVIDER", ProviderOpenAI)),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDimension: p.intVal("EMBED_DIMENSION", 1536),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),

		DataDir:      dataDir,
		DatasetPath:  getEnv("RAGBENCH_DATASET", filepath.Join(dataDir, "dev-v2.0.json")),
		PromptsFile:  os.Getenv("RAGBENCH_PROMPTS_FILE"),
		TopK:         p.intVal("RAGBENCH_TOP_K", 5),
		MaxQuestions: p.intVal("RAGBENCH_MAX_QUESTIONS", 500),

		PollInterval:    p.durationVal("RAGBENCH_POLL_INTERVAL", 5*time.Second),
		PollMaxInterval: p.durationVal("RAGBENCH_POLL_MAX_INTERVAL", 5*time.Minute),
		MaxWait:         p.durationVal("RAGBENCH_MAX_WAIT", 25*time.Hour),

		LogFile:  getEnv("RAGBENCH_LOG_FILE", filepath.Join(os.TempDir(), "ragbench.log")),
		LogLevel: parseLogLevel(getEnv("RAGBENCH_LOG_LEVEL", "INFO")),
	}

	switch cfg.EmbedProvider {
	case ProviderOpenAI, ProviderOllama:
	default:
		p.errs = multierror.Append(p.errs, fmt.Errorf("%w: EMBED_PROVIDER=%q (want openai or ollama)", ErrInvalidEnv, cfg.EmbedProvider))
	}

	return cfg, p.errs.ErrorOrNil()
}

// Require reports every unset variable behind the given credentials in one error.
func (c Config) Require(creds ...Credential) error {
	var errs *multierror.Error
	missing := func(key, val string) {
		if val == "" {
			errs = multierror.Append(errs, fmt.Errorf("%w: %s", ErrMissingEnv, key))
		}
	}

	for _, cred := range creds {
		switch cred {
		case CredOpenAI:
			missing("OPENAI_API_KEY", c.OpenAIAPIKey)
		case CredAzure:
			missing("AZURE_MLSTUDIO_ENDPOINT", c.AzureEndpoint)
			missing("AZURE_MLSTUDIO_KEY", c.AzureKey)
		}
	}
	return errs.ErrorOrNil()
}

// EmbedCredentials returns the credentials the configured embedding provider needs.
func (c Config) EmbedCredentials() []Credential {
	if c.EmbedProvider == ProviderOpenAI {
		return []Credential{CredOpenAI}
	}
	return nil
}

// envParser collects parse failures instead of silently falling back to defaults.
type envParser struct {
	errs *multierror.Error
}

func (p *envParser) intVal(key string, defaultVal int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = multierror.Append(p.errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalidEnv, key, raw, err))
		return defaultVal
	}
	return v
}

func (p *envParser) floatVal(key string, defaultVal float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = multierror.Append(p.errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalidEnv, key, raw, err))
		return defaultVal
	}
	return v
}

func (p *envParser) durationVal(key string, defaultVal time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = multierror.Append(p.errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalidEnv, key, raw, err))
		return defaultVal
	}
	return v
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
