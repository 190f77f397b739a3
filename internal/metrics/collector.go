// Package metrics aggregates per-operation timings for one evaluation run,
// plus the token usage of each labelled run's answer and judge files.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for LLM operations)
	TotalInputTokens  int64
	TotalOutputTokens int64
	MinInputTokens    int64
	MaxInputTokens    int64
	MinOutputTokens   int64
	MaxOutputTokens   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64
	TotalOutputTokens *int64
	AvgInputTokens    *float64
	AvgOutputTokens   *float64
	MinInputTokens    *int64
	MaxInputTokens    *int64
	MinOutputTokens   *int64
	MaxOutputTokens   *int64
}

// Snapshot represents the run statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Embedding     *OperationSnapshot
	DBUpsert      *OperationSnapshot
	DBSearch      *OperationSnapshot
	LLMGenerate   *OperationSnapshot
	BatchSubmit   *OperationSnapshot
	BatchWait     *OperationSnapshot

	// Runs holds token usage per run label and stage, ordered by label.
	Runs []RunUsage
}

// Operation names for the collector.
const (
	OpEmbedding   = "embedding"
	OpDBUpsert    = "db_upsert"
	OpDBSearch    = "db_search"
	OpLLMGenerate = "llm_generate"
	OpBatchSubmit = "batch_submit"
	OpBatchWait   = "batch_wait"
)

// Usage stages of a run.
const (
	StageAnswer = "answer"
	StageJudge  = "judge"
)

// RunUsage is the token usage of one stage of a labelled run, summed over
// its result file.
type RunUsage struct {
	Label        string
	Stage        string
	Requests     int
	InputTokens  int64
	OutputTokens int64
}

// Operations lists the operation names in report order.
var Operations = []string{OpEmbedding, OpDBUpsert, OpDBSearch, OpLLMGenerate, OpBatchSubmit, OpBatchWait}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	runs      map[[2]string]RunUsage
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		runs:      make(map[[2]string]RunUsage),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime:         time.Duration(math.MaxInt64),
			MinInputTokens:  math.MaxInt64,
			MinOutputTokens: math.MaxInt64,
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordLLMUsage records timing and token usage for a chat completion.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens

	if inputTokens < m.MinInputTokens {
		m.MinInputTokens = inputTokens
	}
	if inputTokens > m.MaxInputTokens {
		m.MaxInputTokens = inputTokens
	}
	if outputTokens < m.MinOutputTokens {
		m.MinOutputTokens = outputTokens
	}
	if outputTokens > m.MaxOutputTokens {
		m.MaxOutputTokens = outputTokens
	}
}

// SetRunUsage stores the usage for u.Label and u.Stage, replacing an earlier
// value. Result files are re-read across commands, so totals are set, not added.
func (c *Collector) SetRunUsage(u RunUsage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[[2]string{u.Label, u.Stage}] = u
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeTokens && (m.TotalInputTokens > 0 || m.TotalOutputTokens > 0) {
		totalIn := m.TotalInputTokens
		totalOut := m.TotalOutputTokens
		avgIn := float64(m.TotalInputTokens) / float64(m.Count)
		avgOut := float64(m.TotalOutputTokens) / float64(m.Count)
		minIn := m.MinInputTokens
		maxIn := m.MaxInputTokens
		minOut := m.MinOutputTokens
		maxOut := m.MaxOutputTokens

		// Reset sentinel values for display
		if minIn == math.MaxInt64 {
			minIn = 0
		}
		if minOut == math.MaxInt64 {
			minOut = 0
		}

		snap.TotalInputTokens = &totalIn
		snap.TotalOutputTokens = &totalOut
		snap.AvgInputTokens = &avgIn
		snap.AvgOutputTokens = &avgOut
		snap.MinInputTokens = &minIn
		snap.MaxInputTokens = &maxIn
		snap.MinOutputTokens = &minOut
		snap.MaxOutputTokens = &maxOut
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	runs := make([]RunUsage, 0, len(c.runs))
	for _, u := range c.runs {
		runs = append(runs, u)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Label != runs[j].Label {
			return runs[i].Label < runs[j].Label
		}
		return runs[i].Stage < runs[j].Stage
	})

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Runs:          runs,
		Embedding:     snapshotOp(c.ops[OpEmbedding], false),
		DBUpsert:      snapshotOp(c.ops[OpDBUpsert], false),
		DBSearch:      snapshotOp(c.ops[OpDBSearch], false),
		LLMGenerate:   snapshotOp(c.ops[OpLLMGenerate], true),
		BatchSubmit:   snapshotOp(c.ops[OpBatchSubmit], false),
		BatchWait:     snapshotOp(c.ops[OpBatchWait], false),
	}
}

// Get returns the snapshot for op, or nil if nothing was recorded.
func (s Snapshot) Get(op string) *OperationSnapshot {
	switch op {
	case OpEmbedding:
		return s.Embedding
	case OpDBUpsert:
		return s.DBUpsert
	case OpDBSearch:
		return s.DBSearch
	case OpLLMGenerate:
		return s.LLMGenerate
	case OpBatchSubmit:
		return s.BatchSubmit
	case OpBatchWait:
		return s.BatchWait
	}
	return nil
}
