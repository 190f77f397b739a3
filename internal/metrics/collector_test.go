package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpDBSearch, 10*time.Millisecond)
	c.RecordTiming(OpDBSearch, 30*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.DBSearch)
	assert.Equal(t, int64(2), snap.DBSearch.Count)
	assert.Equal(t, int64(40), snap.DBSearch.TotalTimeMs)
	assert.Equal(t, 20.0, snap.DBSearch.AvgTimeMs)
	assert.Equal(t, int64(10), snap.DBSearch.MinTimeMs)
	assert.Equal(t, int64(30), snap.DBSearch.MaxTimeMs)
	assert.Nil(t, snap.DBSearch.TotalInputTokens, "timing-only ops carry no token stats")
	assert.Nil(t, snap.Embedding)
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 100, 10)
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 300, 30)

	snap := c.Snapshot().Get(OpLLMGenerate)
	require.NotNil(t, snap)
	assert.Equal(t, int64(400), *snap.TotalInputTokens)
	assert.Equal(t, int64(40), *snap.TotalOutputTokens)
	assert.Equal(t, 200.0, *snap.AvgInputTokens)
	assert.Equal(t, int64(100), *snap.MinInputTokens)
	assert.Equal(t, int64(30), *snap.MaxOutputTokens)
}

func TestSnapshotGet(t *testing.T) {
	c := NewCollector()
	for _, op := range Operations {
		c.RecordTiming(op, time.Millisecond)
	}
	snap := c.Snapshot()
	for _, op := range Operations {
		assert.NotNil(t, snap.Get(op), op)
	}
	assert.Nil(t, snap.Get("unknown"))
}

func TestSetRunUsage(t *testing.T) {
	c := NewCollector()
	c.SetRunUsage(RunUsage{Label: "llama", Stage: StageAnswer, Requests: 1, InputTokens: 5, OutputTokens: 1})
	c.SetRunUsage(RunUsage{Label: "gpt", Stage: StageJudge, Requests: 2, InputTokens: 40, OutputTokens: 8})
	c.SetRunUsage(RunUsage{Label: "gpt", Stage: StageAnswer, Requests: 2, InputTokens: 10, OutputTokens: 2})
	c.SetRunUsage(RunUsage{Label: "gpt", Stage: StageAnswer, Requests: 2, InputTokens: 12, OutputTokens: 3})

	runs := c.Snapshot().Runs
	require.Len(t, runs, 3)
	assert.Equal(t, RunUsage{Label: "gpt", Stage: StageAnswer, Requests: 2, InputTokens: 12, OutputTokens: 3}, runs[0])
	assert.Equal(t, StageJudge, runs[1].Stage)
	assert.Equal(t, "llama", runs[2].Label)
}

func TestCollectorConcurrentUse(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(OpEmbedding, time.Millisecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), c.Snapshot().Embedding.Count)
}
