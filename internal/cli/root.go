// Package cli provides the command-line interface for ragbench.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/ragbench/internal/config"
	"github.com/raphaelgruber/ragbench/internal/db"
	"github.com/raphaelgruber/ragbench/internal/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose     bool
	envFile     string
	dataDirFlag string

	// Loaded once in PersistentPreRunE
	cfg       config.Config
	prompts   config.Prompts
	logger    *slog.Logger
	collector *metrics.Collector
	closeLog  = func() error { return nil }

	// Opened lazily by commands that need the context store
	dbClient *db.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ragbench",
	Short: "Retrieval-augmented QA evaluation over SQuAD 2.0",
	Long: `Ragbench measures how well language models answer SQuAD 2.0 questions
when given passages retrieved from a vector store.

It ingests the dataset contexts into SurrealDB, answers the answerable
questions through the OpenAI Batch API or a direct chat endpoint, grades
every answer with a judge model and reports the accuracy.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dataDirFlag != "" {
			cfg.DataDir = dataDirFlag
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)

		prompts, err = config.LoadPrompts(cfg.PromptsFile)
		if err != nil {
			return err
		}

		collector = metrics.NewCollector()
		logger.Debug("configuration loaded", "command", cmd.CommandPath(), "data_dir", cfg.DataDir)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeStore()
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context so polling stops and checkpoint files stay in place.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		// PersistentPostRun is skipped when RunE fails.
		closeStore()
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to seed the environment from")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "directory for checkpoint files (overrides RAGBENCH_DATA_DIR)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(gradeCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
}

func closeStore() {
	if dbClient == nil {
		return
	}
	if err := dbClient.Close(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
	dbClient = nil
}
