package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/raphaelgruber/ragbench/internal/batch"
	"github.com/raphaelgruber/ragbench/internal/dataset"
	"github.com/raphaelgruber/ragbench/internal/llm"
	"github.com/raphaelgruber/ragbench/internal/results"
)

// Backend selects how answers are produced.
type Backend string

// Answer backends.
const (
	BackendBatch  Backend = "batch"
	BackendDirect Backend = "direct"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendBatch, BackendDirect:
		return Backend(s), nil
	}
	return "", fmt.Errorf("unknown backend %q (want batch or direct)", s)
}

// AnswerTasks retrieves context for every question and renders one task per
// question keyed by its index. An empty model and nil temperature are left
// out of the task body.
func (p *Pipeline) AnswerTasks(ctx context.Context, questions []dataset.Question, model string, temperature *float64) ([]batch.Task, error) {
	if p.retriever == nil {
		return nil, fmt.Errorf("%w: embedder and store", ErrBackendUnavailable)
	}

	tasks := make([]batch.Task, 0, len(questions))
	for i, q := range questions {
		passages, err := p.retriever.Retrieve(ctx, q.Question, p.opts.TopK)
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", q.Key(), err)
		}
		tasks = append(tasks, batch.NewTask(q.Key(), model, temperature, p.builder.Build(passages, q.Question)))
		if (i+1)%50 == 0 || i+1 == len(questions) {
			fmt.Fprintf(p.out, "Retrieved contexts for %d/%d questions\n", i+1, len(questions))
		}
	}
	return tasks, nil
}

// AnswerBatch answers every question through the Batch API and returns the
// output path. An existing output file is reused as is.
func (p *Pipeline) AnswerBatch(ctx context.Context, label string, questions []dataset.Question) (string, error) {
	files := p.Files(label)
	if exists(files.Answers()) {
		p.logger.Info("answers already downloaded", "file", files.Answers())
		fmt.Fprintf(p.out, "Reusing answers in %s\n", files.Answers())
		return files.Answers(), nil
	}

	err := p.runBatch(ctx, files.AnswerTasks(), files.Answers(), func() ([]batch.Task, error) {
		return p.AnswerTasks(ctx, questions, p.opts.AnswerModel, batch.Temperature(p.opts.Temperature))
	})
	if err != nil {
		return "", err
	}
	return files.Answers(), nil
}

// AnswerDirect answers every question through the chat endpoint, one at a
// time, appending flat records to the output file. Questions already present
// in the output are skipped, so an interrupted run continues where it stopped.
// Request failures other than llm.ErrFatalAPI are logged and left out of the
// output; grading reports them as missing answers.
func (p *Pipeline) AnswerDirect(ctx context.Context, label string, questions []dataset.Question) (string, error) {
	if p.deps.Chat == nil {
		return "", fmt.Errorf("%w: chat endpoint", ErrBackendUnavailable)
	}
	files := p.Files(label)

	tasks, err := batch.ReadTaskFile(files.AnswerTasks())
	if errors.Is(err, os.ErrNotExist) {
		tasks, err = p.AnswerTasks(ctx, questions, "", nil)
		if err == nil {
			err = batch.WriteTaskFile(files.AnswerTasks(), tasks)
		}
	}
	if err != nil {
		return "", err
	}

	done, err := p.answeredKeys(files.Answers())
	if err != nil {
		return "", err
	}
	byKey := make(map[string]dataset.Question, len(questions))
	for _, q := range questions {
		byKey[q.Key()] = q
	}

	f, err := os.OpenFile(files.Answers(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("open answers: %w", err)
	}
	defer f.Close()
	w := results.NewFlatWriter(f)

	var answered, failed int
	for i, task := range tasks {
		if done[task.CustomID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		c, err := p.deps.Chat.Generate(ctx, task.Body.Messages)
		if err != nil {
			if errors.Is(err, llm.ErrFatalAPI) || ctx.Err() != nil {
				return "", fmt.Errorf("answer %s: %w", task.CustomID, err)
			}
			failed++
			p.logger.Warn("direct answer failed", "key", task.CustomID, "error", err)
			continue
		}

		rec := results.FlatRecord{
			CustomID:     task.CustomID,
			Question:     byKey[task.CustomID].Question,
			Response:     c.Content,
			InputTokens:  c.InputTokens,
			OutputTokens: c.OutputTokens,
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		answered++
		fmt.Fprintf(p.out, "Answered %d/%d with %s\n", i+1, len(tasks), p.deps.Chat.Model())
	}

	p.logger.Info("direct answering complete", "answered", answered, "skipped", len(done), "failed", failed)
	return files.Answers(), nil
}

func (p *Pipeline) answeredKeys(path string) (map[string]bool, error) {
	done := map[string]bool{}
	if !exists(path) {
		return done, nil
	}
	prev, _, err := p.parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	for _, r := range prev {
		if r.CustomID != "" && r.Err == "" {
			done[r.CustomID] = true
		}
	}
	return done, nil
}

// Answer dispatches to the chosen backend.
func (p *Pipeline) Answer(ctx context.Context, backend Backend, label string, questions []dataset.Question) (string, error) {
	if backend == BackendDirect {
		return p.AnswerDirect(ctx, label, questions)
	}
	return p.AnswerBatch(ctx, label, questions)
}

// LoadAnswers parses the answer file of label.
func (p *Pipeline) LoadAnswers(label string) ([]results.Result, results.Stats, error) {
	return p.parser.ParseFile(p.Files(label).Answers())
}
