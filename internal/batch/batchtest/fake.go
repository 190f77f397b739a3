// Package batchtest provides an in-memory Batch API for tests.
package batchtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/raphaelgruber/ragbench/internal/batch"
	"github.com/sashabaranov/go-openai"
)

// Responder produces the assistant content for a task.
type Responder func(task batch.Task) string

// FakeAPI implements batch.API. Each uploaded file is kept in memory; a
// created batch runs every task through Respond and stores the output file.
type FakeAPI struct {
	mu sync.Mutex

	Respond Responder

	// Statuses are served by successive RetrieveBatch calls; once exhausted
	// the job reports "completed".
	Statuses []string
	// RetrieveErrs are returned by the first RetrieveBatch calls.
	RetrieveErrs []error

	UploadErr error
	CreateErr error

	Files     map[string][]byte
	Uploads   []openai.FileBytesRequest
	Creates   []openai.CreateBatchRequest
	Retrieves int

	outputs map[string]string
	next    int
}

// NewFakeAPI returns a fake that answers every task with respond.
func NewFakeAPI(respond Responder) *FakeAPI {
	return &FakeAPI{
		Respond: respond,
		Files:   map[string][]byte{},
		outputs: map[string]string{},
	}
}

var _ batch.API = (*FakeAPI)(nil)

// CreateFileBytes stores the upload.
func (f *FakeAPI) CreateFileBytes(_ context.Context, req openai.FileBytesRequest) (openai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.UploadErr != nil {
		return openai.File{}, f.UploadErr
	}
	f.next++
	id := fmt.Sprintf("file-in-%d", f.next)
	f.Files[id] = append([]byte(nil), req.Bytes...)
	f.Uploads = append(f.Uploads, req)
	return openai.File{ID: id}, nil
}

// CreateBatch answers every task in the input file and records the output.
func (f *FakeAPI) CreateBatch(_ context.Context, req openai.CreateBatchRequest) (openai.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		return openai.BatchResponse{}, f.CreateErr
	}
	input, ok := f.Files[req.InputFileID]
	if !ok {
		return openai.BatchResponse{}, fmt.Errorf("no such file: %s", req.InputFileID)
	}
	tasks, err := batch.ReadTasks(bytes.NewReader(input))
	if err != nil {
		return openai.BatchResponse{}, err
	}

	var out bytes.Buffer
	for i, task := range tasks {
		content := ""
		if f.Respond != nil {
			content = f.Respond(task)
		}
		out.WriteString(EnvelopeLine(fmt.Sprintf("batch_req_%d", i), task.CustomID, content))
		out.WriteByte('\n')
	}

	f.next++
	jobID := fmt.Sprintf("batch_%d", f.next)
	outputID := fmt.Sprintf("file-out-%d", f.next)
	f.Files[outputID] = out.Bytes()
	f.outputs[jobID] = outputID
	f.Creates = append(f.Creates, req)

	return openai.BatchResponse{Batch: openai.Batch{
		ID:               jobID,
		Status:           "validating",
		InputFileID:      req.InputFileID,
		CompletionWindow: req.CompletionWindow,
	}}, nil
}

// RetrieveBatch serves the next scripted status.
func (f *FakeAPI) RetrieveBatch(_ context.Context, id string) (openai.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Retrieves++
	if len(f.RetrieveErrs) > 0 {
		err := f.RetrieveErrs[0]
		f.RetrieveErrs = f.RetrieveErrs[1:]
		return openai.BatchResponse{}, err
	}

	status := "completed"
	if len(f.Statuses) > 0 {
		status = f.Statuses[0]
		f.Statuses = f.Statuses[1:]
	}

	b := openai.Batch{ID: id, Status: status}
	if status == "completed" {
		if outputID, ok := f.outputs[id]; ok {
			b.OutputFileID = &outputID
		}
	}
	return openai.BatchResponse{Batch: b}, nil
}

// GetFileContent returns a stored file.
func (f *FakeAPI) GetFileContent(_ context.Context, id string) (openai.RawResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.Files[id]
	if !ok {
		return openai.RawResponse{}, fmt.Errorf("no such file: %s", id)
	}
	return openai.RawResponse{ReadCloser: io.NopCloser(bytes.NewReader(data))}, nil
}

// SetOutput registers an output file for a job ID not created through CreateBatch.
func (f *FakeAPI) SetOutput(jobID string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	outputID := "file-out-" + jobID
	f.Files[outputID] = content
	f.outputs[jobID] = outputID
}

// EnvelopeLine renders one Batch API output line.
func EnvelopeLine(requestID, customID, content string) string {
	line := map[string]any{
		"id":        requestID,
		"custom_id": customID,
		"response": map[string]any{
			"status_code": 200,
			"request_id":  "req_" + requestID,
			"body": map[string]any{
				"object": "chat.completion",
				"choices": []any{map[string]any{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": content},
					"finish_reason": "stop",
				}},
				"usage": map[string]any{
					"prompt_tokens":     len(customID) + 100,
					"completion_tokens": len(content),
				},
			},
		},
		"error": nil,
	}
	data, _ := json.Marshal(line)
	return string(data)
}
