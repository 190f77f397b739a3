package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/ragbench/internal/batch"
	"github.com/raphaelgruber/ragbench/internal/dataset"
	"github.com/raphaelgruber/ragbench/internal/grading"
	"github.com/raphaelgruber/ragbench/internal/metrics"
	"github.com/raphaelgruber/ragbench/internal/report"
	"github.com/raphaelgruber/ragbench/internal/results"
	"github.com/raphaelgruber/ragbench/internal/scoring"
)

// gradeInputs aligns the answers of label with questions.
func (p *Pipeline) gradeInputs(label string, questions []dataset.Question) ([]grading.Input, error) {
	answers, stats, err := p.LoadAnswers(label)
	if err != nil {
		return nil, err
	}
	if stats.Malformed > 0 {
		fmt.Fprintf(p.out, "Skipped %d malformed answer lines\n", stats.Malformed)
	}
	p.recordUsage(label, metrics.StageAnswer, answers)
	return grading.Align(questions, answers), nil
}

// recordUsage sums the token counts of a result file into the collector.
func (p *Pipeline) recordUsage(label, stage string, rs []results.Result) {
	if p.deps.Metrics == nil {
		return
	}
	u := metrics.RunUsage{Label: label, Stage: stage}
	for _, r := range rs {
		if r.Err != "" {
			continue
		}
		u.Requests++
		u.InputTokens += int64(r.InputTokens)
		u.OutputTokens += int64(r.OutputTokens)
	}
	p.deps.Metrics.SetRunUsage(u)
}

// Grade submits a judge batch for the answers of label and returns the
// scoring results path. An existing results file is reused.
func (p *Pipeline) Grade(ctx context.Context, label string, questions []dataset.Question) (string, error) {
	files := p.Files(label)
	if exists(files.ScoringResults()) {
		p.logger.Info("grades already downloaded", "file", files.ScoringResults())
		fmt.Fprintf(p.out, "Reusing grades in %s\n", files.ScoringResults())
		return files.ScoringResults(), nil
	}

	err := p.runBatch(ctx, files.ScoringTasks(), files.ScoringResults(), func() ([]batch.Task, error) {
		inputs, err := p.gradeInputs(label, questions)
		if err != nil {
			return nil, err
		}
		tasks, warn := p.grader.BuildTasks(inputs)
		if warn != nil {
			p.logger.Warn("some answers could not be graded", "skipped", len(inputs)-len(tasks), "error", warn)
			fmt.Fprintf(p.out, "Skipped %d ungradable answers\n", len(inputs)-len(tasks))
		}
		return tasks, nil
	})
	if err != nil {
		return "", err
	}
	return files.ScoringResults(), nil
}

// Score reads the judge results of label and summarises them under policy.
// The rows join each question with its answer and verdict.
func (p *Pipeline) Score(label string, questions []dataset.Question, policy scoring.Policy) (report.Run, error) {
	run, verdicts, err := p.ScoreFile(p.Files(label).ScoringResults(), policy)
	if err != nil {
		return report.Run{}, err
	}
	run.Label = label
	run.Summary.Label = label

	inputs, err := p.gradeInputs(label, questions)
	if err != nil {
		p.logger.Warn("answers unavailable for report rows", "label", label, "error", err)
		return run, nil
	}
	run.Rows = report.BuildRows(inputs, verdicts)
	return run, nil
}

// ScoreFile scores any judge results file. The run is labelled after the
// file name and its rows carry only the verdicts.
func (p *Pipeline) ScoreFile(path string, policy scoring.Policy) (report.Run, []grading.Verdict, error) {
	judged, stats, err := p.parser.ParseFile(path)
	if err != nil {
		return report.Run{}, nil, err
	}
	if stats.Malformed > 0 {
		p.logger.Warn("malformed judge lines skipped", "file", path, "count", stats.Malformed)
	}

	verdicts := grading.Verdicts(judged)
	summary := scoring.Score(verdicts, policy)
	summary.Label = LabelFromPath(path)
	p.recordUsage(summary.Label, metrics.StageJudge, judged)

	rows := make([]report.Row, 0, len(verdicts))
	for _, v := range verdicts {
		rows = append(rows, report.BuildRows([]grading.Input{{Key: v.Key}}, []grading.Verdict{v})...)
	}
	return report.Run{Label: summary.Label, Summary: summary, Rows: rows}, verdicts, nil
}

// LabelFromPath derives a run label from a checkpoint file name.
func LabelFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, suffix := range []string{"_scoring_results", "_output"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return base
}

// Target selects one model run.
type Target struct {
	Label   string
	Backend Backend
}

// Run answers, grades and scores every target in turn.
func (p *Pipeline) Run(ctx context.Context, questions []dataset.Question, targets []Target, policy scoring.Policy) ([]report.Run, error) {
	runs := make([]report.Run, 0, len(targets))
	for _, t := range targets {
		fmt.Fprintf(p.out, "== %s (%s) ==\n", t.Label, t.Backend)
		if _, err := p.Answer(ctx, t.Backend, t.Label, questions); err != nil {
			return runs, fmt.Errorf("%s: answer: %w", t.Label, err)
		}
		if _, err := p.Grade(ctx, t.Label, questions); err != nil {
			return runs, fmt.Errorf("%s: grade: %w", t.Label, err)
		}
		run, err := p.Score(t.Label, questions, policy)
		if err != nil {
			return runs, fmt.Errorf("%s: score: %w", t.Label, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
