package batch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/raphaelgruber/ragbench/internal/batch"
	"github.com/raphaelgruber/ragbench/internal/batch/batchtest"
	"github.com/raphaelgruber/ragbench/internal/metrics"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	api := batchtest.NewFakeAPI(func(task batch.Task) string { return "answer " + task.CustomID })
	m := metrics.NewCollector()
	s := batch.NewSubmitter(api, nil, m)

	path := filepath.Join(t.TempDir(), "gpt4o_input_batch.jsonl")
	tasks := sampleTasks(3)

	job, err := s.Submit(context.Background(), path, tasks)
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 3, job.Tasks)
	assert.Equal(t, path, job.TaskFile)
	assert.Len(t, job.RunID, 36)

	require.Len(t, api.Uploads, 1)
	assert.Equal(t, openai.PurposeBatch, api.Uploads[0].Purpose)
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, onDisk, api.Uploads[0].Bytes, "uploaded bytes are the task file")

	require.Len(t, api.Creates, 1)
	assert.Equal(t, batch.CompletionWindow, api.Creates[0].CompletionWindow)
	assert.Equal(t, openai.BatchEndpointChatCompletions, api.Creates[0].Endpoint)
	assert.Equal(t, job.InputFileID, api.Creates[0].InputFileID)
	assert.Equal(t, job.RunID, api.Creates[0].Metadata["run_id"])

	assert.NotNil(t, m.Snapshot().BatchSubmit)
}

func TestSubmitFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*batchtest.FakeAPI)
		uploads int
	}{
		{"upload fails", func(f *batchtest.FakeAPI) { f.UploadErr = errors.New("401 unauthorized") }, 0},
		{"create fails", func(f *batchtest.FakeAPI) { f.CreateErr = errors.New("connection reset") }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := batchtest.NewFakeAPI(nil)
			tt.setup(api)
			s := batch.NewSubmitter(api, nil, nil)

			_, err := s.Submit(context.Background(), filepath.Join(t.TempDir(), "tasks.jsonl"), sampleTasks(2))
			require.Error(t, err)
			assert.True(t, errors.Is(err, batch.ErrSubmit))
			assert.Len(t, api.Uploads, tt.uploads)
			assert.Empty(t, api.Creates)
		})
	}
}

func TestSubmitEmpty(t *testing.T) {
	s := batch.NewSubmitter(batchtest.NewFakeAPI(nil), nil, nil)
	_, err := s.Submit(context.Background(), filepath.Join(t.TempDir(), "tasks.jsonl"), nil)
	assert.True(t, errors.Is(err, batch.ErrSubmit))
}

func TestJobCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpt4o_batch.json")

	none, err := batch.LoadJob(path)
	require.NoError(t, err)
	assert.Nil(t, none)

	job := &batch.Job{ID: "batch_1", InputFileID: "file-1", RunID: "run", Tasks: 2, Status: "validating"}
	require.NoError(t, batch.SaveJob(path, job))

	got, err := batch.LoadJob(path)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, 2, got.Tasks)

	require.NoError(t, os.WriteFile(path, []byte(`{"status":"x"}`), 0644))
	_, err = batch.LoadJob(path)
	assert.ErrorContains(t, err, "no job_id")
}
