package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	gradeLabel   string
	gradeDataset string
	gradeLimit   int
)

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Grade a run's answers with the judge model",
	Long: `Pair every answer in <label>_output.jsonl with its reference answers and
submit a judge batch. The verdicts land in <label>_scoring_results.jsonl.

Answers without references, and questions without answers, are skipped
and reported.

Examples:
  ragbench grade --label gpt
  ragbench grade --label llama`,
	Args: cobra.NoArgs,
	RunE: runGrade,
}

func init() {
	gradeCmd.Flags().StringVarP(&gradeLabel, "label", "l", "gpt", "run label to grade")
	gradeCmd.Flags().StringVar(&gradeDataset, "dataset", "", "SQuAD file (default RAGBENCH_DATASET)")
	gradeCmd.Flags().IntVarP(&gradeLimit, "limit", "n", 0, "max questions (default RAGBENCH_MAX_QUESTIONS)")
}

func runGrade(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	questions, err := loadQuestions(gradeDataset, gradeLimit)
	if err != nil {
		return err
	}

	p, err := newPipeline(ctx, need{batch: true})
	if err != nil {
		return err
	}
	watchPolls(p.Poller())

	path, err := p.Grade(ctx, gradeLabel, questions)
	if err != nil {
		return fmt.Errorf("grade: %w", err)
	}
	fmt.Printf("Grades written to %s\n", path)
	return nil
}
