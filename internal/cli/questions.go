package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/raphaelgruber/ragbench/internal/db"
	"github.com/raphaelgruber/ragbench/internal/models"
	"github.com/spf13/cobra"
)

var (
	questionsDataset string
	questionsLimit   int
	questionsJSON    bool
	questionsSource  bool
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "List the answerable questions that will be evaluated",
	Long: `List the answerable dataset questions in evaluation order, with the
index used as the batch custom_id and the reference answers.

Examples:
  ragbench questions
  ragbench questions --limit 10
  ragbench questions --source -n 5
  ragbench questions --json > questions.jsonl`,
	Args: cobra.NoArgs,
	RunE: runQuestions,
}

func init() {
	questionsCmd.Flags().StringVar(&questionsDataset, "dataset", "", "SQuAD file (default RAGBENCH_DATASET)")
	questionsCmd.Flags().IntVarP(&questionsLimit, "limit", "n", 0, "max questions (default RAGBENCH_MAX_QUESTIONS)")
	questionsCmd.Flags().BoolVar(&questionsJSON, "json", false, "print one JSON object per line")
	questionsCmd.Flags().BoolVar(&questionsSource, "source", false, "look up each question's ingested source passage")
}

func runQuestions(cmd *cobra.Command, args []string) error {
	questions, err := loadQuestions(questionsDataset, questionsLimit)
	if err != nil {
		return err
	}

	if questionsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		for _, q := range questions {
			if err := enc.Encode(q); err != nil {
				return fmt.Errorf("encode question: %w", err)
			}
		}
		return nil
	}

	var store *db.Client
	if questionsSource {
		if store, err = openStore(cmd.Context()); err != nil {
			return err
		}
	}

	for _, q := range questions {
		fmt.Printf("%4d. %s\n", q.Index, q.Question)
		if verbose {
			fmt.Printf("      answers: %s\n", strings.Join(q.References, "; "))
		}
		if store == nil {
			continue
		}
		passage, err := store.GetPassage(cmd.Context(), q.Document)
		if err != nil {
			return err
		}
		if passage == nil {
			fmt.Printf("      source: passage %s not ingested\n", q.Document)
			continue
		}
		fmt.Printf("      source: %s #%d (passage %s)\n", passage.Title, passage.Position, models.MustRecordIDString(passage.ID))
	}
	fmt.Printf("\n%d questions\n", len(questions))
	return nil
}
