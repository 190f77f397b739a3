package cli

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/ragbench/internal/pipeline"
	"github.com/raphaelgruber/ragbench/internal/report"
	"github.com/raphaelgruber/ragbench/internal/scoring"
	"github.com/spf13/cobra"
)

var (
	scoreLabels  []string
	scoreDataset string
	scoreLimit   int
	scoreExclude bool
	scoreXLSX    string
)

var scoreCmd = &cobra.Command{
	Use:   "score [results-file...]",
	Short: "Report accuracy from judge results",
	Long: `Extract the judge verdicts and report correct, total, parse failures and
accuracy per run.

With no arguments the runs named by --label are scored from the data
directory, joined with their questions and answers. Any number of judge
result files may be given instead.

Unreadable verdicts count against accuracy unless --exclude-parse-failures
is set; they are always reported separately.

Examples:
  ragbench score
  ragbench score --label gpt --label llama --xlsx data/report.xlsx
  ragbench score data/gpt_scoring_results.jsonl data/llama_scoring_results.jsonl
  ragbench score --exclude-parse-failures`,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringSliceVarP(&scoreLabels, "label", "l", []string{"gpt", "llama"}, "run labels to score")
	scoreCmd.Flags().StringVar(&scoreDataset, "dataset", "", "SQuAD file (default RAGBENCH_DATASET)")
	scoreCmd.Flags().IntVarP(&scoreLimit, "limit", "n", 0, "max questions (default RAGBENCH_MAX_QUESTIONS)")
	scoreCmd.Flags().BoolVar(&scoreExclude, "exclude-parse-failures", false, "leave unreadable verdicts out of the denominator")
	scoreCmd.Flags().StringVar(&scoreXLSX, "xlsx", "", "also write a per-question workbook to this path")
}

func scorePolicy() scoring.Policy {
	if scoreExclude {
		return scoring.ExcludeParseFailures
	}
	return scoring.CountParseFailures
}

func runScore(cmd *cobra.Command, args []string) error {
	p, err := newPipeline(cmd.Context(), need{})
	if err != nil {
		return err
	}

	var runs []report.Run
	if len(args) > 0 {
		for _, path := range args {
			run, _, err := p.ScoreFile(path, scorePolicy())
			if err != nil {
				return fmt.Errorf("score %s: %w", path, err)
			}
			runs = append(runs, run)
		}
	} else {
		runs, err = scoreLabelled(p)
		if err != nil {
			return err
		}
	}

	report.Print(os.Stdout, runs, nil)
	return exportXLSX(runs)
}

func scoreLabelled(p *pipeline.Pipeline) ([]report.Run, error) {
	questions, err := loadQuestions(scoreDataset, scoreLimit)
	if err != nil {
		return nil, err
	}

	var runs []report.Run
	for _, label := range scoreLabels {
		path := p.Files(label).ScoringResults()
		if _, err := os.Stat(path); err != nil {
			logger.Warn("no judge results for label", "label", label, "file", path)
			fmt.Printf("Skipping %s: %s not found\n", label, path)
			continue
		}
		run, err := p.Score(label, questions, scorePolicy())
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", label, err)
		}
		runs = append(runs, run)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no judge results found in %s", cfg.DataDir)
	}
	return runs, nil
}

func exportXLSX(runs []report.Run) error {
	if scoreXLSX == "" {
		return nil
	}
	if err := report.WriteXLSX(scoreXLSX, runs); err != nil {
		return fmt.Errorf("export xlsx: %w", err)
	}
	fmt.Printf("\nWorkbook written to %s\n", scoreXLSX)
	return nil
}
