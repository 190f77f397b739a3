// Package prompt assembles the chat messages sent for each question.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/raphaelgruber/ragbench/internal/models"
)

// Template placeholders.
const (
	ContextPlaceholder  = "{context}"
	QuestionPlaceholder = "{question}"
)

// ContextSeparator joins retrieved passages.
const ContextSeparator = "\n\n"

// ErrInvalidTemplate indicates a template without exactly one of each placeholder.
var ErrInvalidTemplate = errors.New("invalid prompt template")

// Builder renders a fixed system prompt and user template.
type Builder struct {
	system   string
	template string
}

// New validates template and returns a Builder.
func New(system, template string) (*Builder, error) {
	if err := ValidateTemplate(template, ContextPlaceholder, QuestionPlaceholder); err != nil {
		return nil, err
	}
	return &Builder{system: system, template: template}, nil
}

// ValidateTemplate checks that each placeholder occurs exactly once.
func ValidateTemplate(template string, placeholders ...string) error {
	var errs *multierror.Error
	for _, p := range placeholders {
		if n := strings.Count(template, p); n != 1 {
			errs = multierror.Append(errs, fmt.Errorf("%w: %s appears %d times, want 1", ErrInvalidTemplate, p, n))
		}
	}
	return errs.ErrorOrNil()
}

// Build returns the system and user messages for question and its retrieved context.
func (b *Builder) Build(context []string, question string) []models.Message {
	user := strings.NewReplacer(
		ContextPlaceholder, strings.Join(context, ContextSeparator),
		QuestionPlaceholder, question,
	).Replace(b.template)

	return []models.Message{
		{Role: models.RoleSystem, Content: b.system},
		{Role: models.RoleUser, Content: user},
	}
}
