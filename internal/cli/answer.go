package cli

import (
	"fmt"

	"github.com/raphaelgruber/ragbench/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	answerBackend string
	answerLabel   string
	answerDataset string
	answerLimit   int
	answerPrint   bool
)

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Answer every question with retrieved context",
	Long: `Retrieve the top-K passages for every question and ask a model to answer.

The batch backend submits one OpenAI Batch API job and waits for it; the
direct backend calls the Llama chat endpoint one question at a time. Both
write <label>_output.jsonl to the data directory and pick up where an
interrupted run stopped.

Examples:
  ragbench answer
  ragbench answer --backend direct
  ragbench answer --backend batch --label gpt4o --print`,
	Args: cobra.NoArgs,
	RunE: runAnswer,
}

func init() {
	answerCmd.Flags().StringVarP(&answerBackend, "backend", "b", string(pipeline.BackendBatch), "answer backend: batch or direct")
	answerCmd.Flags().StringVarP(&answerLabel, "label", "l", "", "run label used in file names (default gpt or llama)")
	answerCmd.Flags().StringVar(&answerDataset, "dataset", "", "SQuAD file (default RAGBENCH_DATASET)")
	answerCmd.Flags().IntVarP(&answerLimit, "limit", "n", 0, "max questions (default RAGBENCH_MAX_QUESTIONS)")
	answerCmd.Flags().BoolVar(&answerPrint, "print", false, "print every model response afterwards")
}

func runAnswer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	backend, err := pipeline.ParseBackend(answerBackend)
	if err != nil {
		return err
	}
	label := answerLabel
	if label == "" {
		label = defaultLabel(backend)
	}

	questions, err := loadQuestions(answerDataset, answerLimit)
	if err != nil {
		return err
	}

	p, err := newPipeline(ctx, need{
		store: true,
		batch: backend == pipeline.BackendBatch,
		chat:  backend == pipeline.BackendDirect,
	})
	if err != nil {
		return err
	}
	if backend == pipeline.BackendBatch {
		watchPolls(p.Poller())
	}

	path, err := p.Answer(ctx, backend, label, questions)
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	fmt.Printf("Answers written to %s\n", path)

	if answerPrint {
		return printAnswers(p, label)
	}
	return nil
}

func printAnswers(p *pipeline.Pipeline, label string) error {
	answers, stats, err := p.LoadAnswers(label)
	if err != nil {
		return err
	}
	for _, a := range answers {
		fmt.Println("Model's Response:")
		if a.Err != "" {
			fmt.Printf("\t(request failed: %s)\n", a.Err)
			continue
		}
		fmt.Printf("\t%s\n", a.Content)
	}
	if stats.Malformed > 0 {
		fmt.Printf("\n%d malformed lines skipped\n", stats.Malformed)
	}
	return nil
}
