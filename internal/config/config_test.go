package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"RAGBENCH_TOP_K", "RAGBENCH_MAX_QUESTIONS", "RAGBENCH_POLL_INTERVAL", "EMBED_PROVIDER", "RAGBENCH_DATA_DIR", "RAGBENCH_DATASET"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8000/rpc", cfg.SurrealDBURL)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 500, cfg.MaxQuestions)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, "gpt-4o-mini", cfg.AnswerModel)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbedModel)
	assert.Equal(t, ProviderOpenAI, cfg.EmbedProvider)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, filepath.Join("data", "dev-v2.0.json"), cfg.DatasetPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RAGBENCH_TOP_K", "3")
	t.Setenv("RAGBENCH_POLL_INTERVAL", "250ms")
	t.Setenv("EMBED_PROVIDER", "Ollama")
	t.Setenv("RAGBENCH_DATA_DIR", "/tmp/run")
	t.Setenv("RAGBENCH_DATASET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, ProviderOllama, cfg.EmbedProvider)
	assert.Equal(t, "/tmp/run/dev-v2.0.json", cfg.DatasetPath)
	assert.Empty(t, cfg.EmbedCredentials())
}

func TestLoadReportsAllInvalidValues(t *testing.T) {
	t.Setenv("RAGBENCH_TOP_K", "five")
	t.Setenv("RAGBENCH_MAX_WAIT", "forever")
	t.Setenv("EMBED_PROVIDER", "bedrock")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidEnv))
	assert.Contains(t, err.Error(), "RAGBENCH_TOP_K")
	assert.Contains(t, err.Error(), "RAGBENCH_MAX_WAIT")
	assert.Contains(t, err.Error(), "EMBED_PROVIDER")
}

func TestRequire(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		creds   []Credential
		missing []string
	}{
		{"nothing required", Config{}, nil, nil},
		{"openai present", Config{OpenAIAPIKey: "sk-test"}, []Credential{CredOpenAI}, nil},
		{"openai missing", Config{}, []Credential{CredOpenAI}, []string{"OPENAI_API_KEY"}},
		{
			"azure and openai missing",
			Config{AzureEndpoint: "https://example.inference.ml.azure.com"},
			[]Credential{CredOpenAI, CredAzure},
			[]string{"OPENAI_API_KEY", "AZURE_MLSTUDIO_KEY"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Require(tt.creds...)
			if len(tt.missing) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingEnv))
			for _, key := range tt.missing {
				assert.Contains(t, err.Error(), key)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))
	})

	t.Run("sets unset variables", func(t *testing.T) {
		path := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(path, []byte("RAGBENCH_DOTENV_PROBE=from-file\n"), 0644))
		t.Cleanup(func() { os.Unsetenv("RAGBENCH_DOTENV_PROBE") })

		require.NoError(t, LoadDotEnv(path))
		assert.Equal(t, "from-file", os.Getenv("RAGBENCH_DOTENV_PROBE"))
	})
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("batch submitted", "job_id", "batch_1")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "job_id=batch_1")
	assert.True(t, strings.HasPrefix(file.String(), "{"))
	assert.Contains(t, file.String(), `"job_id":"batch_1"`)
}

func TestLoadPrompts(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		p, err := LoadPrompts("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPrompts(), p)
	})

	t.Run("overlay from yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		content := "answer_system: Be brief.\njudge_template: |\n  Q: {question}\n  A: {student_response}\n  Refs: {correct_answers}\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		p, err := LoadPrompts(path)
		require.NoError(t, err)
		assert.Equal(t, "Be brief.", p.AnswerSystem)
		assert.Equal(t, DefaultAnswerTemplate, p.AnswerTemplate)
		assert.Contains(t, p.JudgeTemplate, "Refs: {correct_answers}")
		assert.Equal(t, DefaultJudgeSystem, p.JudgeSystem)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("answer_system: [unterminated"), 0644))

		_, err := LoadPrompts(path)
		assert.Error(t, err)
	})
}
