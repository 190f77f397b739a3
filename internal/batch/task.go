// Package batch submits chat-completion tasks to the OpenAI Batch API and waits for results.
package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/ragbench/internal/models"
)

// Task request constants required by the Batch API.
const (
	MethodPOST              = "POST"
	EndpointChatCompletions = "/v1/chat/completions"
)

// maxLineSize bounds a single JSONL line; prompts with five passages stay well below it.
const maxLineSize = 16 * 1024 * 1024

// Body is the chat-completions request body of a task.
type Body struct {
	Model       string           `json:"model,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	Messages    []models.Message `json:"messages"`
}

// Task is one line of a batch input file.
type Task struct {
	CustomID string `json:"custom_id"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Body     Body   `json:"body"`
}

// NewTask builds a chat-completions task. An empty model and nil temperature
// are omitted from the body.
func NewTask(customID, model string, temperature *float64, messages []models.Message) Task {
	return Task{
		CustomID: customID,
		Method:   MethodPOST,
		URL:      EndpointChatCompletions,
		Body: Body{
			Model:       model,
			Temperature: temperature,
			Messages:    messages,
		},
	}
}

// Temperature returns a pointer for Body.Temperature.
func Temperature(t float64) *float64 {
	return &t
}

// WriteTasks writes one JSON object per line, in order.
func WriteTasks(w io.Writer, tasks []Task) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, task := range tasks {
		if err := enc.Encode(task); err != nil {
			return fmt.Errorf("encode task %d: %w", i, err)
		}
	}
	return nil
}

// ReadTasks reads a task file written by WriteTasks. Blank lines are ignored.
func ReadTasks(r io.Reader) ([]Task, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var tasks []Task
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var task Task
		if err := json.Unmarshal(raw, &task); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		tasks = append(tasks, task)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return tasks, nil
}

// WriteTaskFile writes tasks to path, creating parent directories.
func WriteTaskFile(path string, tasks []Task) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create task dir: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteTasks(&buf, tasks); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}
	return nil
}

// ReadTaskFile reads the tasks stored at path.
func ReadTaskFile(path string) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open task file: %w", err)
	}
	defer f.Close()
	return ReadTasks(f)
}
