package grading

import (
	"errors"
	"strings"
	"testing"

	"github.com/raphaelgruber/ragbench/internal/batch"
	"github.com/raphaelgruber/ragbench/internal/config"
	"github.com/raphaelgruber/ragbench/internal/dataset"
	"github.com/raphaelgruber/ragbench/internal/models"
	"github.com/raphaelgruber/ragbench/internal/prompt"
	"github.com/raphaelgruber/ragbench/internal/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGrader(t *testing.T) *Grader {
	t.Helper()
	g, err := NewGrader(config.DefaultJudgeSystem, config.DefaultJudgeTemplate, "gpt-4o-mini", batch.Temperature(0.2), nil)
	require.NoError(t, err)
	return g
}

func TestNewGraderRejectsBadTemplate(t *testing.T) {
	_, err := NewGrader("sys", "Question: {question} Answer: {student_response}", "m", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, prompt.ErrInvalidTemplate))
	assert.Contains(t, err.Error(), ReferencesPlaceholder)
}

func TestBuildTasks(t *testing.T) {
	g := newTestGrader(t)

	tasks, err := g.BuildTasks([]Input{
		{Key: "0", Question: "In what country is Normandy located?", Answer: "France.", HasAnswer: true, References: []string{"france"}},
		{Key: "1", Question: "When?", Answer: "10th century", HasAnswer: true, References: []string{"10th century", "the first half of the 10th century"}},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	task := tasks[1]
	assert.Equal(t, "1", task.CustomID)
	assert.Equal(t, batch.EndpointChatCompletions, task.URL)
	assert.Equal(t, "gpt-4o-mini", task.Body.Model)
	require.Len(t, task.Body.Messages, 2)
	assert.Equal(t, models.RoleSystem, task.Body.Messages[0].Role)
	assert.Equal(t, config.DefaultJudgeSystem, task.Body.Messages[0].Content)

	user := task.Body.Messages[1].Content
	assert.Contains(t, user, "Question: When?")
	assert.Contains(t, user, "Student's Response: 10th century")
	assert.Contains(t, user, "Possible Correct Answers: 10th century; the first half of the 10th century")
	assert.Contains(t, user, `"score": true or false (boolean)`)
	assert.NotContains(t, user, "{question}")
}

func TestBuildTasksSkipsMismatches(t *testing.T) {
	g := newTestGrader(t)

	tasks, err := g.BuildTasks([]Input{
		{Key: "0", Question: "q0", Answer: "a0", HasAnswer: true, References: []string{"a0"}},
		{Key: "1", Question: "q1", References: []string{"r1"}},
		{Key: "9", Question: "orphan", Answer: "a9", HasAnswer: true},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArity))
	assert.Contains(t, err.Error(), "item 1")
	assert.Contains(t, err.Error(), "item 9")
	require.Len(t, tasks, 1)
	assert.Equal(t, "0", tasks[0].CustomID)
}

func TestAlign(t *testing.T) {
	questions := []dataset.Question{
		{Index: 0, Question: "q0", References: []string{"r0"}},
		{Index: 1, Question: "q1", References: []string{"r1"}},
		{Index: 2, Question: "q2", References: []string{"r2"}},
	}

	t.Run("by custom id in any order", func(t *testing.T) {
		inputs := Align(questions, []results.Result{
			{CustomID: "2", Content: "a2"},
			{CustomID: "0", Content: "a0"},
			{CustomID: "1", Err: "server error"},
			{CustomID: "7", Question: "stray", Content: "a7"},
		})

		require.Len(t, inputs, 4)
		assert.Equal(t, Input{Key: "0", Question: "q0", Answer: "a0", HasAnswer: true, References: []string{"r0"}}, inputs[0])
		assert.False(t, inputs[1].HasAnswer)
		assert.Equal(t, "a2", inputs[2].Answer)
		assert.Equal(t, Input{Key: "7", Question: "stray", Answer: "a7", HasAnswer: true}, inputs[3])
	})

	t.Run("positional fallback", func(t *testing.T) {
		inputs := Align(questions, []results.Result{
			{Question: "q0", Content: "a0"},
			{Question: "q1", Content: "a1"},
		})

		require.Len(t, inputs, 3)
		assert.Equal(t, "a0", inputs[0].Answer)
		assert.Equal(t, "a1", inputs[1].Answer)
		assert.False(t, inputs[2].HasAnswer)
	})
}

func TestVerdicts(t *testing.T) {
	got := Verdicts([]results.Result{
		{CustomID: "0", Content: `{"explanation": "ok", "score": true}`},
		{CustomID: "1", Content: "I think so."},
		{CustomID: "2", Err: "expired"},
	})

	require.Len(t, got, 3)
	assert.True(t, got[0].Parsed())
	assert.True(t, got[0].Grade.Score)
	assert.False(t, got[1].Parsed())
	assert.True(t, errors.Is(got[1].Err, ErrNoJSON))
	assert.False(t, got[2].Parsed())
	assert.True(t, strings.Contains(got[2].Err.Error(), "expired"))
}
