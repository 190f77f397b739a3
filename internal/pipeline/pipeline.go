// Package pipeline wires the evaluation stages together and owns the
// checkpoint files in the data directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/ragbench/internal/batch"
	"github.com/raphaelgruber/ragbench/internal/config"
	"github.com/raphaelgruber/ragbench/internal/db"
	"github.com/raphaelgruber/ragbench/internal/grading"
	"github.com/raphaelgruber/ragbench/internal/llm"
	"github.com/raphaelgruber/ragbench/internal/metrics"
	"github.com/raphaelgruber/ragbench/internal/models"
	"github.com/raphaelgruber/ragbench/internal/prompt"
	"github.com/raphaelgruber/ragbench/internal/results"
	"github.com/raphaelgruber/ragbench/internal/retrieval"
)

// ErrBackendUnavailable is returned when a stage needs a client that was not configured.
var ErrBackendUnavailable = errors.New("backend not configured")

// Embedder embeds passages and questions.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

// Store holds the passage embeddings.
type Store interface {
	retrieval.Store
	InitSchema(ctx context.Context, dimension int) error
	UpsertPassages(ctx context.Context, docs []models.Document, embeddings [][]float32) error
	CountPassages(ctx context.Context) (int, error)
	SaveCollection(ctx context.Context, col db.Collection) error
	GetCollection(ctx context.Context, name string) (*db.Collection, error)
	WipeData(ctx context.Context) error
	DropIndex(ctx context.Context) error
}

// Generator answers one prompt synchronously.
type Generator interface {
	Generate(ctx context.Context, messages []models.Message) (llm.Completion, error)
	Model() string
}

var (
	_ Embedder  = (*llm.Embedder)(nil)
	_ Store     = (*db.Client)(nil)
	_ Generator = (*llm.Chat)(nil)
)

// Options configures a Pipeline.
type Options struct {
	DataDir         string
	TopK            int
	IngestBatchSize int
	AnswerModel     string
	JudgeModel      string
	Temperature     float64
	Prompts         config.Prompts
	Poll            batch.PollerConfig
}

// OptionsFromConfig maps the loaded configuration onto pipeline options.
func OptionsFromConfig(cfg config.Config, prompts config.Prompts) Options {
	return Options{
		DataDir:     cfg.DataDir,
		TopK:        cfg.TopK,
		AnswerModel: cfg.AnswerModel,
		JudgeModel:  cfg.JudgeModel,
		Temperature: cfg.Temperature,
		Prompts:     prompts,
		Poll: batch.PollerConfig{
			Interval:    cfg.PollInterval,
			MaxInterval: cfg.PollMaxInterval,
			MaxWait:     cfg.MaxWait,
		},
	}
}

// Deps are the clients a Pipeline uses. Any of them may be nil; stages that
// need a missing client fail with ErrBackendUnavailable.
type Deps struct {
	API      batch.API
	Embedder Embedder
	Store    Store
	Chat     Generator

	Logger  *slog.Logger
	Metrics *metrics.Collector
	// Out receives progress lines for humans. Defaults to io.Discard.
	Out io.Writer
}

// Pipeline runs the evaluation stages.
type Pipeline struct {
	opts Options
	deps Deps

	logger    *slog.Logger
	out       io.Writer
	builder   *prompt.Builder
	grader    *grading.Grader
	parser    *results.Parser
	retriever *retrieval.Retriever
	submitter *batch.Submitter
	poller    *batch.Poller
}

// New validates the prompts and assembles a pipeline.
func New(opts Options, deps Deps) (*Pipeline, error) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.IngestBatchSize <= 0 {
		opts.IngestBatchSize = DefaultIngestBatchSize
	}
	if opts.Prompts == (config.Prompts{}) {
		opts.Prompts = config.DefaultPrompts()
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := deps.Out
	if out == nil {
		out = io.Discard
	}

	builder, err := prompt.New(opts.Prompts.AnswerSystem, opts.Prompts.AnswerTemplate)
	if err != nil {
		return nil, fmt.Errorf("answer template: %w", err)
	}
	grader, err := grading.NewGrader(opts.Prompts.JudgeSystem, opts.Prompts.JudgeTemplate,
		opts.JudgeModel, batch.Temperature(opts.Temperature), logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		opts:    opts,
		deps:    deps,
		logger:  logger,
		out:     out,
		builder: builder,
		grader:  grader,
		parser:  results.NewParser(logger),
	}
	if deps.Embedder != nil && deps.Store != nil {
		p.retriever = retrieval.New(deps.Embedder, deps.Store, opts.TopK, logger)
	}
	if deps.API != nil {
		p.submitter = batch.NewSubmitter(deps.API, logger, deps.Metrics)
		p.poller = batch.NewPoller(deps.API, opts.Poll, logger, deps.Metrics)
	}
	return p, nil
}

// Poller returns the batch poller so callers can observe status updates.
// It is nil when no batch API was configured.
func (p *Pipeline) Poller() *batch.Poller {
	return p.poller
}

// Files names the checkpoint files of one labelled run.
type Files struct {
	Dir   string
	Label string
}

// Files returns the checkpoint files for label.
func (p *Pipeline) Files(label string) Files {
	return Files{Dir: p.opts.DataDir, Label: label}
}

func (f Files) path(suffix string) string {
	return filepath.Join(f.Dir, f.Label+suffix)
}

// AnswerTasks is the answer batch input.
func (f Files) AnswerTasks() string { return f.path("_input_batch.jsonl") }

// Answers holds the model answers in either result shape.
func (f Files) Answers() string { return f.path("_output.jsonl") }

// ScoringTasks is the judge batch input.
func (f Files) ScoringTasks() string { return f.path("_scoring_input_batch.jsonl") }

// ScoringResults holds the judge output.
func (f Files) ScoringResults() string { return f.path("_scoring_results.jsonl") }

// JobFile is the submitted-job checkpoint kept next to a task file.
func JobFile(taskPath string) string {
	return strings.TrimSuffix(taskPath, ".jsonl") + ".job.json"
}

// FailedJobFile is where the checkpoint of a failed or expired job is moved.
func FailedJobFile(taskPath string) string {
	return strings.TrimSuffix(taskPath, ".jsonl") + ".failed.json"
}

// exists reports whether path is a non-empty regular file.
func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// runBatch submits the tasks from build (or resumes a saved job), waits
// for it, and downloads the output to outPath.
func (p *Pipeline) runBatch(ctx context.Context, taskPath, outPath string, build func() ([]batch.Task, error)) error {
	if p.submitter == nil {
		return fmt.Errorf("%w: batch API", ErrBackendUnavailable)
	}
	jobPath := JobFile(taskPath)

	job, err := batch.LoadJob(jobPath)
	if err != nil {
		return err
	}
	if job != nil {
		p.logger.Info("resuming batch job", "job_id", job.ID, "task_file", taskPath)
		fmt.Fprintf(p.out, "Resuming batch job %s\n", job.ID)
	} else {
		tasks, err := build()
		if err != nil {
			return err
		}
		job, err = p.submitter.Submit(ctx, taskPath, tasks)
		if err != nil {
			return err
		}
		if err := batch.SaveJob(jobPath, job); err != nil {
			return err
		}
		fmt.Fprintf(p.out, "Submitted batch job %s (%d tasks)\n", job.ID, job.Tasks)
	}

	outcome, err := p.poller.Wait(ctx, job.ID)
	if err != nil {
		return err
	}
	if outcome.Kind == batch.Failed {
		// A dead job is never resumed; the next run submits a fresh one.
		failedPath := FailedJobFile(taskPath)
		if err := os.Rename(jobPath, failedPath); err != nil {
			return fmt.Errorf("%w (clear %s to resubmit: %v)", outcome.Err(job.ID), jobPath, err)
		}
		p.logger.Warn("batch job failed, checkpoint cleared", "job_id", job.ID, "moved_to", failedPath)
		return fmt.Errorf("%w (rerun to resubmit)", outcome.Err(job.ID))
	}
	if err := outcome.Err(job.ID); err != nil {
		return err
	}

	n, err := batch.Download(ctx, p.deps.API, outcome.OutputFileID, outPath)
	if err != nil {
		return err
	}
	p.logger.Info("batch output downloaded", "job_id", job.ID, "file", outPath, "bytes", n)
	fmt.Fprintf(p.out, "Batch %s completed: %d/%d requests, output %s\n", job.ID, outcome.Done, outcome.Total, outPath)
	return nil
}
