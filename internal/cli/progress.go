package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/ragbench/internal/batch"
	"github.com/sashabaranov/go-openai"
)

const progressInterval = 5 * time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the batch status
type tickMsg time.Time

// batchUpdateMsg carries the polled batch
type batchUpdateMsg struct {
	batch openai.Batch
	err   error
}

// progressModel is the bubbletea model for batch progress.
type progressModel struct {
	ctx      context.Context
	api      batch.API
	jobID    string
	batch    *openai.Batch
	polls    int
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(ctx context.Context, api batch.API, jobID string) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		ctx:      ctx,
		api:      api,
		jobID:    jobID,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init polls immediately.
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchBatch(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if m.ctx.Err() != nil {
			m.err = m.ctx.Err()
			m.done = true
			return m, tea.Quit
		}
		return m, m.fetchBatch()

	case batchUpdateMsg:
		m.polls++
		if msg.err != nil {
			// Transient errors are shown and retried on the next tick.
			m.err = msg.err
			return m, tickCmd()
		}
		m.err = nil
		m.batch = &msg.batch

		if batch.MapStatus(m.batch.Status).Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	if m.batch == nil {
		if m.err != nil {
			return m.theme.errorStyle().Render(fmt.Sprintf("Retrying: %s\n", m.err))
		}
		return "Loading batch status...\n"
	}

	c := m.batch.RequestCounts
	var pct float64
	if c.Total > 0 {
		pct = float64(c.Completed+c.Failed) / float64(c.Total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.batch.Status))
	bar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d requests", c.Completed, c.Total)
	if c.Failed > 0 {
		counts += m.theme.errorStyle().Render(fmt.Sprintf(" (%d failed)", c.Failed))
	}
	hint := m.theme.hintStyle().Render("Press q to stop watching; the batch keeps running")

	out := fmt.Sprintf("%s %s %s\n%s\n", status, bar, counts, hint)
	if m.err != nil {
		out += m.theme.errorStyle().Render(fmt.Sprintf("Last poll failed: %s\n", m.err))
	}
	return out
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nBatch %s continues in the background.\nUse 'ragbench batch status %s' to check on it.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}
	if m.batch == nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Watch stopped: %v\n", m.err))
	}

	out := batch.Classify(*m.batch)
	if out.Kind != batch.Completed {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Batch %s: %s\n", out.State, out.Reason))
	}
	return m.theme.completedStyle().Render("✓ Completed") +
		fmt.Sprintf("\n\n  Requests completed: %d\n  Requests failed:    %d\n", out.Done, out.FailedCount)
}

// fetchBatch polls the batch status in a command so Update never blocks.
func (m progressModel) fetchBatch() tea.Cmd {
	return func() tea.Msg {
		b, err := retrieveStatus(m.ctx, m.api, m.jobID)
		return batchUpdateMsg{batch: b, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(progressInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunBatchProgress runs the interactive progress UI for a batch job until
// it reaches a terminal status. detached is true when the user stopped
// watching early.
func RunBatchProgress(ctx context.Context, api batch.API, jobID string) (out batch.Outcome, detached bool, err error) {
	p := tea.NewProgram(newProgressModel(ctx, api, jobID), tea.WithContext(ctx))

	final, err := p.Run()
	if ctx.Err() != nil {
		return batch.Outcome{}, false, ctx.Err()
	}
	if err != nil {
		return batch.Outcome{}, false, fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := final.(progressModel)
	if !ok {
		return batch.Outcome{}, false, fmt.Errorf("progress UI returned %T", final)
	}
	if m.quitting {
		return batch.Outcome{}, true, nil
	}
	if m.batch == nil {
		return batch.Outcome{}, false, m.err
	}
	out = batch.Classify(*m.batch)
	out.Polls = m.polls
	return out, false, nil
}
