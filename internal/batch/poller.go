package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/raphaelgruber/ragbench/internal/metrics"
	"github.com/sashabaranov/go-openai"
)

// State is the local view of a batch job's lifecycle.
type State string

// Job states.
const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateExpired   State = "EXPIRED"
)

// Terminal reports whether polling can stop.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateExpired
}

// MapStatus maps a provider status onto a State. Unknown statuses count as running.
func MapStatus(status string) State {
	switch status {
	case "validating":
		return StatePending
	case "in_progress", "finalizing", "cancelling":
		return StateRunning
	case "completed":
		return StateCompleted
	case "failed", "cancelled":
		return StateFailed
	case "expired":
		return StateExpired
	default:
		return StateRunning
	}
}

// OutcomeKind classifies how waiting on a job ended.
type OutcomeKind int

// Outcome kinds.
const (
	Completed OutcomeKind = iota
	Failed
	TimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	}
	return "unknown"
}

// Outcome is the result of Wait.
type Outcome struct {
	Kind         OutcomeKind
	State        State
	Status       string
	OutputFileID string
	ErrorFileID  string
	Reason       string
	Polls        int
	Total        int
	Done         int
	FailedCount  int
}

// Errors surfaced for non-completed outcomes.
var (
	ErrBatchFailed = errors.New("batch job did not complete")
	ErrTimedOut    = errors.New("timed out waiting for batch job")
)

// Err returns nil for a completed outcome and a descriptive error otherwise.
func (o Outcome) Err(jobID string) error {
	switch o.Kind {
	case Completed:
		return nil
	case TimedOut:
		return fmt.Errorf("%w %s after %d polls (last status %q)", ErrTimedOut, jobID, o.Polls, o.Status)
	default:
		return fmt.Errorf("%w: job %s is %s: %s", ErrBatchFailed, jobID, o.State, o.Reason)
	}
}

var errStillRunning = errors.New("batch still running")

// PollerConfig bounds the wait. Zero values use the defaults below.
type PollerConfig struct {
	Interval    time.Duration // First delay between polls (default 5s)
	MaxInterval time.Duration // Backoff cap (default 5m)
	MaxWait     time.Duration // Overall deadline, 0 means none
	MaxAttempts uint          // Poll bound, 0 means unbounded
}

// StatusFunc observes every successful poll.
type StatusFunc func(b openai.Batch)

// Poller waits for batch jobs with exponential backoff.
type Poller struct {
	api      API
	cfg      PollerConfig
	logger   *slog.Logger
	metrics  *metrics.Collector
	onStatus StatusFunc
}

// NewPoller creates a poller. logger and m may be nil.
func NewPoller(api API, cfg PollerConfig, logger *slog.Logger, m *metrics.Collector) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Minute
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = cfg.Interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{api: api, cfg: cfg, logger: logger, metrics: m}
}

// OnStatus registers fn to be called after each successful poll.
func (p *Poller) OnStatus(fn StatusFunc) {
	p.onStatus = fn
}

// Wait polls jobID until it reaches a terminal state or the configured bound
// is hit. Retrieval errors are retried within the same bound. A cancelled ctx
// returns its error.
func (p *Poller) Wait(ctx context.Context, jobID string) (Outcome, error) {
	waitCtx := ctx
	if p.cfg.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.cfg.MaxWait)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordTiming(metrics.OpBatchWait, time.Since(start))
		}
	}()

	var (
		last     openai.Batch
		polled   bool
		polls    int
		lastSeen State
	)

	err := retry.Do(
		func() error {
			polls++
			resp, err := p.api.RetrieveBatch(waitCtx, jobID)
			if err != nil {
				return fmt.Errorf("retrieve batch: %w", err)
			}
			last, polled = resp.Batch, true
			if p.onStatus != nil {
				p.onStatus(last)
			}

			state := MapStatus(last.Status)
			if state != lastSeen {
				p.logger.Info("batch status", "job_id", jobID, "status", last.Status, "state", state,
					"completed", last.RequestCounts.Completed, "failed", last.RequestCounts.Failed,
					"total", last.RequestCounts.Total)
				lastSeen = state
			}
			if state.Terminal() {
				return nil
			}
			return errStillRunning
		},
		retry.Context(waitCtx),
		retry.Attempts(p.cfg.MaxAttempts),
		retry.Delay(p.cfg.Interval),
		retry.MaxDelay(p.cfg.MaxInterval),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if !errors.Is(err, errStillRunning) {
				p.logger.Warn("batch poll failed, retrying", "job_id", jobID, "attempt", n+1, "error", err)
			}
		}),
	)

	out := Outcome{Polls: polls}
	if polled {
		out = observe(last)
		out.Polls = polls
	}

	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if !polled && !errors.Is(err, context.DeadlineExceeded) {
			return out, fmt.Errorf("poll batch %s: %w", jobID, err)
		}
		out.Kind = TimedOut
		return out, nil
	}

	return classify(out, last), nil
}

// Classify turns a terminal batch into an Outcome. A non-terminal batch
// yields a TimedOut outcome carrying its current counts.
func Classify(b openai.Batch) Outcome {
	out := observe(b)
	if !out.State.Terminal() {
		out.Kind = TimedOut
		return out
	}
	return classify(out, b)
}

func observe(b openai.Batch) Outcome {
	return Outcome{
		State:       MapStatus(b.Status),
		Status:      b.Status,
		Total:       b.RequestCounts.Total,
		Done:        b.RequestCounts.Completed,
		FailedCount: b.RequestCounts.Failed,
	}
}

func classify(out Outcome, b openai.Batch) Outcome {
	switch out.State {
	case StateCompleted:
		if b.OutputFileID == nil || *b.OutputFileID == "" {
			out.Kind = Failed
			out.Reason = fmt.Sprintf("completed without an output file (%d of %d requests failed)", b.RequestCounts.Failed, b.RequestCounts.Total)
			break
		}
		out.Kind = Completed
		out.OutputFileID = *b.OutputFileID
	case StateExpired:
		out.Kind = Failed
		out.Reason = fmt.Sprintf("expired after the %s completion window", CompletionWindow)
	default:
		out.Kind = Failed
		out.Reason = fmt.Sprintf("provider status %q (%d of %d requests failed)", b.Status, b.RequestCounts.Failed, b.RequestCounts.Total)
	}
	if b.ErrorFileID != nil {
		out.ErrorFileID = *b.ErrorFileID
	}
	return out
}

// Download copies the content of fileID to path byte-for-byte.
func Download(ctx context.Context, api API, fileID, path string) (int64, error) {
	resp, err := api.GetFileContent(ctx, fileID)
	if err != nil {
		return 0, fmt.Errorf("get file content %s: %w", fileID, err)
	}
	defer resp.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}

	n, err := io.Copy(f, resp)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("download %s: %w", fileID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("finalize output file: %w", err)
	}
	return n, nil
}
