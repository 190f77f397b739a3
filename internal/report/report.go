// Package report renders evaluation summaries to the console and to xlsx.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/ragbench/internal/grading"
	"github.com/raphaelgruber/ragbench/internal/metrics"
	"github.com/raphaelgruber/ragbench/internal/scoring"
)

// Theme holds the console colors.
type Theme struct {
	Title   lipgloss.Color
	Success lipgloss.Color
	Warn    lipgloss.Color
	Hint    lipgloss.Color
}

// DefaultTheme is used by Print.
var DefaultTheme = Theme{
	Title:   lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Warn:    lipgloss.Color("#FFAF00"), // amber
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Title).Bold(true)
}

func (t Theme) accuracyStyle(s scoring.Summary) lipgloss.Style {
	if s.Insufficient {
		return lipgloss.NewStyle().Foreground(t.Warn).Bold(true)
	}
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// Verdict labels used in the per-question rows.
const (
	VerdictCorrect      = "correct"
	VerdictIncorrect    = "incorrect"
	VerdictParseFailure = "parse failure"
	VerdictUngraded     = "ungraded"
)

// Row is one graded question.
type Row struct {
	Key         string
	Question    string
	Answer      string
	References  []string
	Verdict     string
	Explanation string
}

// Run is the scored outcome of one answer file.
type Run struct {
	Label   string
	Summary scoring.Summary
	Rows    []Row
}

// BuildRows joins graded inputs with their verdicts by key. Inputs that
// were never judged are marked ungraded.
func BuildRows(inputs []grading.Input, verdicts []grading.Verdict) []Row {
	byKey := make(map[string]grading.Verdict, len(verdicts))
	for _, v := range verdicts {
		byKey[v.Key] = v
	}

	rows := make([]Row, 0, len(inputs))
	for _, in := range inputs {
		row := Row{
			Key:        in.Key,
			Question:   in.Question,
			Answer:     in.Answer,
			References: in.References,
			Verdict:    VerdictUngraded,
		}
		if v, ok := byKey[in.Key]; ok {
			switch {
			case !v.Parsed():
				row.Verdict = VerdictParseFailure
				row.Explanation = v.Raw
			case v.Grade.Score:
				row.Verdict = VerdictCorrect
				row.Explanation = v.Grade.Explanation
			default:
				row.Verdict = VerdictIncorrect
				row.Explanation = v.Grade.Explanation
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Print writes one block per run followed by the operation metrics.
// A nil snapshot omits the metrics section.
func Print(w io.Writer, runs []Run, snap *metrics.Snapshot) {
	t := DefaultTheme
	for i, run := range runs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		s := run.Summary
		fmt.Fprintln(w, t.titleStyle().Render(run.Label))
		fmt.Fprintf(w, "  Correct:        %d\n", s.Correct)
		fmt.Fprintf(w, "  Incorrect:      %d\n", s.Incorrect)
		fmt.Fprintf(w, "  Parse failures: %d\n", s.ParseFailures)
		fmt.Fprintf(w, "  Attempted:      %d\n", s.Attempted)
		fmt.Fprintf(w, "  Total:          %d (%s)\n", s.Total, s.Policy)
		fmt.Fprintf(w, "  Accuracy:       %s\n", t.accuracyStyle(s).Render(s.AccuracyText()))
	}

	if snap != nil {
		if len(runs) > 0 {
			fmt.Fprintln(w)
		}
		PrintMetrics(w, *snap)
	}
}

// PrintMetrics writes timing and token statistics for every recorded operation.
func PrintMetrics(w io.Writer, snap metrics.Snapshot) {
	t := DefaultTheme
	fmt.Fprintln(w, t.titleStyle().Render("Operations"))
	fmt.Fprintf(w, "  Elapsed: %.1f seconds\n", snap.UptimeSeconds)

	printed := 0
	for _, op := range metrics.Operations {
		s := snap.Get(op)
		if s == nil {
			continue
		}
		printed++
		fmt.Fprintf(w, "\n  %s:\n", opTitle(op))
		printOpStats(w, s)
		printTokenStats(w, s)
	}
	if printed == 0 {
		fmt.Fprintln(w, t.hintStyle().Render("  no operations recorded"))
	}

	if len(snap.Runs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, t.titleStyle().Render("Token usage"))
		for _, u := range snap.Runs {
			fmt.Fprintf(w, "  %s %s: %d requests, %d in, %d out\n", u.Label, u.Stage, u.Requests, u.InputTokens, u.OutputTokens)
		}
	}
}

func opTitle(op string) string {
	words := strings.Split(op, "_")
	for i, word := range words {
		switch word {
		case "db", "llm":
			words[i] = strings.ToUpper(word)
		default:
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "    Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(w, "    Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

func printTokenStats(w io.Writer, op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(w, "    Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgInputTokens)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "    Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgOutputTokens)
	}
	fmt.Fprintln(w)
}
