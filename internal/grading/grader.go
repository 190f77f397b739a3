// Package grading builds judge tasks for model answers and recovers the
// judge's verdicts.
package grading

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/raphaelgruber/ragbench/internal/batch"
	"github.com/raphaelgruber/ragbench/internal/dataset"
	"github.com/raphaelgruber/ragbench/internal/models"
	"github.com/raphaelgruber/ragbench/internal/prompt"
	"github.com/raphaelgruber/ragbench/internal/results"
)

// Judge template placeholders.
const (
	QuestionPlaceholder   = "{question}"
	AnswerPlaceholder     = "{student_response}"
	ReferencesPlaceholder = "{correct_answers}"
)

// ReferenceSeparator joins reference answers in the judge prompt.
const ReferenceSeparator = "; "

// ErrArity marks an item that has an answer without references or the reverse.
var ErrArity = errors.New("answer and references do not pair up")

// Input is one answer to grade.
type Input struct {
	Key        string
	Question   string
	Answer     string
	HasAnswer  bool
	References []string
}

// Grader renders judge tasks.
type Grader struct {
	system      string
	template    string
	model       string
	temperature *float64
	logger      *slog.Logger
}

// NewGrader validates the judge template and returns a Grader. A nil
// temperature is omitted from the task body.
func NewGrader(system, template, model string, temperature *float64, logger *slog.Logger) (*Grader, error) {
	if err := prompt.ValidateTemplate(template, QuestionPlaceholder, AnswerPlaceholder, ReferencesPlaceholder); err != nil {
		return nil, fmt.Errorf("judge template: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Grader{
		system:      system,
		template:    template,
		model:       model,
		temperature: temperature,
		logger:      logger,
	}, nil
}

// BuildTasks returns one judge task per input that has both an answer and
// references. Skipped items are logged and returned together as a non-nil
// warning; the tasks are still valid.
func (g *Grader) BuildTasks(inputs []Input) ([]batch.Task, error) {
	var (
		tasks []batch.Task
		skips *multierror.Error
	)
	for _, in := range inputs {
		if !in.HasAnswer || len(in.References) == 0 {
			g.logger.Warn("skipping ungradable item",
				"key", in.Key,
				"has_answer", in.HasAnswer,
				"references", len(in.References))
			skips = multierror.Append(skips, fmt.Errorf("%w: item %s", ErrArity, in.Key))
			continue
		}
		tasks = append(tasks, batch.NewTask(in.Key, g.model, g.temperature, g.messages(in)))
	}
	return tasks, skips.ErrorOrNil()
}

func (g *Grader) messages(in Input) []models.Message {
	user := strings.NewReplacer(
		QuestionPlaceholder, in.Question,
		AnswerPlaceholder, in.Answer,
		ReferencesPlaceholder, strings.Join(in.References, ReferenceSeparator),
	).Replace(g.template)

	return []models.Message{
		{Role: models.RoleSystem, Content: g.system},
		{Role: models.RoleUser, Content: user},
	}
}

// Align pairs parsed answers with their questions through custom_id.
// Answers without a custom_id are matched by position among such answers.
// Each question yields one Input; answers whose key matches no question
// are appended with no references so BuildTasks reports them.
// Provider-side request errors count as missing answers.
func Align(questions []dataset.Question, answers []results.Result) []Input {
	byKey := make(map[string]results.Result, len(answers))
	var positional []results.Result
	for _, a := range answers {
		if a.CustomID == "" {
			positional = append(positional, a)
			continue
		}
		if _, dup := byKey[a.CustomID]; !dup {
			byKey[a.CustomID] = a
		}
	}

	inputs := make([]Input, 0, len(questions))
	for i, q := range questions {
		in := Input{Key: q.Key(), Question: q.Question, References: q.References}
		a, ok := byKey[q.Key()]
		if ok {
			delete(byKey, q.Key())
		} else if i < len(positional) {
			a, ok = positional[i], true
		}
		if ok && a.Err == "" {
			in.Answer = a.Content
			in.HasAnswer = true
		}
		inputs = append(inputs, in)
	}

	for _, a := range answers {
		if _, orphan := byKey[a.CustomID]; !orphan {
			continue
		}
		delete(byKey, a.CustomID)
		inputs = append(inputs, Input{Key: a.CustomID, Question: a.Question, Answer: a.Content, HasAnswer: a.Err == ""})
	}
	return inputs
}

// Verdict is the graded outcome of one judge result.
type Verdict struct {
	Key   string
	Grade Grade
	// Err is ErrNoJSON or ErrMalformedGrade when the verdict was unreadable.
	Err error
	Raw string
}

// Parsed reports whether a grade was recovered.
func (v Verdict) Parsed() bool {
	return v.Err == nil
}

// Verdicts extracts a grade from every judge result.
func Verdicts(judged []results.Result) []Verdict {
	out := make([]Verdict, 0, len(judged))
	for _, r := range judged {
		v := Verdict{Key: r.CustomID, Raw: r.Content}
		if r.Err != "" {
			v.Err = fmt.Errorf("%w: judge request failed: %s", ErrNoJSON, r.Err)
		} else {
			v.Grade, v.Err = Extract(r.Content)
		}
		out = append(out, v)
	}
	return out
}

