package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/raphaelgruber/ragbench/internal/batch"
	"github.com/raphaelgruber/ragbench/internal/config"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	watchDownload string
	watchPlain    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Inspect OpenAI batch jobs",
	Long: `Inspect batch jobs submitted by answer, grade or run.

A job may be named by its id or by the .job.json checkpoint written next
to its task file.`,
}

var batchStatusCmd = &cobra.Command{
	Use:   "status <job-id|job-file>",
	Short: "Show the current status of a batch job",
	Long: `Show the current status of a batch job.

Examples:
  ragbench batch status batch_abc123
  ragbench batch status data/gpt_input_batch.job.json`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchStatus,
}

var batchWatchCmd = &cobra.Command{
	Use:   "watch <job-id|job-file>",
	Short: "Wait for a batch job and optionally download its output",
	Long: `Poll a batch job until it completes, fails or expires.

On a terminal an interactive progress bar is shown; otherwise status
changes are printed as lines.

Examples:
  ragbench batch watch batch_abc123
  ragbench batch watch data/gpt_input_batch.job.json --download data/gpt_output.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchWatch,
}

func init() {
	batchWatchCmd.Flags().StringVarP(&watchDownload, "download", "o", "", "write the output file here on completion")
	batchWatchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print status lines even on a terminal")

	batchCmd.AddCommand(batchStatusCmd)
	batchCmd.AddCommand(batchWatchCmd)
}

// resolveJobID accepts a job id or the path of a saved job checkpoint.
func resolveJobID(arg string) (string, error) {
	if !strings.HasSuffix(arg, ".json") {
		return arg, nil
	}
	job, err := batch.LoadJob(arg)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", fmt.Errorf("job file not found: %s", arg)
	}
	return job.ID, nil
}

func openBatchAPI() (*openai.Client, error) {
	if err := cfg.Require(config.CredOpenAI); err != nil {
		return nil, err
	}
	return batch.NewOpenAIClient(cfg)
}

func runBatchStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	id, err := resolveJobID(args[0])
	if err != nil {
		return err
	}
	api, err := openBatchAPI()
	if err != nil {
		return err
	}

	resp, err := api.RetrieveBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("retrieve batch: %w", err)
	}
	printBatch(resp.Batch)
	return nil
}

func printBatch(b openai.Batch) {
	fmt.Printf("Batch: %s\n", b.ID)
	fmt.Printf("  Status: %s (%s)\n", b.Status, batch.MapStatus(b.Status))
	fmt.Printf("  Input file: %s\n", b.InputFileID)
	if b.OutputFileID != nil && *b.OutputFileID != "" {
		fmt.Printf("  Output file: %s\n", *b.OutputFileID)
	}
	if b.ErrorFileID != nil && *b.ErrorFileID != "" {
		fmt.Printf("  Error file: %s\n", *b.ErrorFileID)
	}
	c := b.RequestCounts
	fmt.Printf("  Requests: %d completed, %d failed, %d total\n", c.Completed, c.Failed, c.Total)
	if b.CreatedAt > 0 {
		fmt.Printf("  Created: %s\n", time.Unix(int64(b.CreatedAt), 0).Format(time.RFC3339))
	}
}

func runBatchWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	id, err := resolveJobID(args[0])
	if err != nil {
		return err
	}
	api, err := openBatchAPI()
	if err != nil {
		return err
	}

	var (
		outcome  batch.Outcome
		detached bool
	)
	if !watchPlain && term.IsTerminal(int(os.Stdout.Fd())) {
		outcome, detached, err = RunBatchProgress(ctx, api, id)
	} else {
		poller := batch.NewPoller(api, batch.PollerConfig{
			Interval:    cfg.PollInterval,
			MaxInterval: cfg.PollMaxInterval,
			MaxWait:     cfg.MaxWait,
		}, logger, collector)
		watchPolls(poller)
		outcome, err = poller.Wait(ctx, id)
	}
	if err != nil {
		return err
	}
	if detached {
		return nil
	}
	if err := outcome.Err(id); err != nil {
		return err
	}

	fmt.Printf("Batch %s completed: %d/%d requests\n", id, outcome.Done, outcome.Total)
	if watchDownload == "" {
		return nil
	}
	n, err := batch.Download(ctx, api, outcome.OutputFileID, watchDownload)
	if err != nil {
		return err
	}
	fmt.Printf("Downloaded %d bytes to %s\n", n, watchDownload)
	return nil
}

// watchPolls prints every status change observed by poller, like the
// original scripts did on each poll.
func watchPolls(poller *batch.Poller) {
	if poller == nil {
		return
	}
	var last string
	poller.OnStatus(func(b openai.Batch) {
		if b.Status == last {
			return
		}
		last = b.Status
		fmt.Printf("Status: %s (%d/%d)\n", b.Status, b.RequestCounts.Completed, b.RequestCounts.Total)
	})
}

// pollTimeout bounds a single status request from the progress UI.
const pollTimeout = 30 * time.Second

func retrieveStatus(ctx context.Context, api batch.API, id string) (openai.Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()
	resp, err := api.RetrieveBatch(ctx, id)
	return resp.Batch, err
}
