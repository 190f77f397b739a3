package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/ragbench/internal/metrics"
	"github.com/sashabaranov/go-openai"
)

// CompletionWindow is the deadline requested for every batch job.
const CompletionWindow = "24h"

// ErrSubmit wraps upload and job-creation failures. Submissions are never
// retried since a duplicate job is billed twice.
var ErrSubmit = errors.New("batch submission failed")

// Job is a submitted batch job.
type Job struct {
	ID          string    `json:"job_id"`
	InputFileID string    `json:"input_file_id"`
	RunID       string    `json:"run_id"`
	TaskFile    string    `json:"task_file"`
	Tasks       int       `json:"tasks"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Submitter uploads task files and creates batch jobs.
type Submitter struct {
	api     API
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewSubmitter creates a submitter. logger and m may be nil.
func NewSubmitter(api API, logger *slog.Logger, m *metrics.Collector) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{api: api, logger: logger, metrics: m}
}

// Submit writes tasks to taskPath, uploads the file and creates a job against
// the chat-completions endpoint.
func (s *Submitter) Submit(ctx context.Context, taskPath string, tasks []Task) (*Job, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: no tasks", ErrSubmit)
	}
	if err := WriteTaskFile(taskPath, tasks); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(taskPath)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordTiming(metrics.OpBatchSubmit, time.Since(start))
		}
	}()

	runID := uuid.New().String()
	file, err := s.api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    fmt.Sprintf("%s-%s", runID[:8], filepath.Base(taskPath)),
		Bytes:   data,
		Purpose: openai.PurposeBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: upload %s: %w", ErrSubmit, taskPath, err)
	}
	s.logger.Info("uploaded batch input", "file_id", file.ID, "tasks", len(tasks), "bytes", len(data))

	resp, err := s.api.CreateBatch(ctx, openai.CreateBatchRequest{
		InputFileID:      file.ID,
		Endpoint:         openai.BatchEndpointChatCompletions,
		CompletionWindow: CompletionWindow,
		Metadata:         map[string]any{"run_id": runID, "task_file": filepath.Base(taskPath)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create batch: %w", ErrSubmit, err)
	}

	job := &Job{
		ID:          resp.ID,
		InputFileID: file.ID,
		RunID:       runID,
		TaskFile:    taskPath,
		Tasks:       len(tasks),
		Status:      resp.Status,
		SubmittedAt: time.Now().UTC(),
	}
	s.logger.Info("batch job created", "job_id", job.ID, "status", job.Status, "run_id", runID)
	return job, nil
}
