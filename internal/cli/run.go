package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/raphaelgruber/ragbench/internal/pipeline"
	"github.com/raphaelgruber/ragbench/internal/report"
	"github.com/spf13/cobra"
)

var (
	runModels     []string
	runDataset    string
	runLimit      int
	runWithIngest bool
	runWipe       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Answer, grade and score in one go",
	Long: `Run the whole evaluation for each --model, given as label:backend.

Every stage reuses the checkpoint files already in the data directory, so
an interrupted run can simply be started again.

Examples:
  ragbench run
  ragbench run --ingest
  ragbench run --model gpt:batch
  ragbench run --model gpt:batch --model llama:direct --xlsx data/report.xlsx`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runModels, "model", "m", []string{"gpt:batch", "llama:direct"}, "runs as label:backend")
	runCmd.Flags().StringVar(&runDataset, "dataset", "", "SQuAD file (default RAGBENCH_DATASET)")
	runCmd.Flags().IntVarP(&runLimit, "limit", "n", 0, "max questions (default RAGBENCH_MAX_QUESTIONS)")
	runCmd.Flags().BoolVar(&runWithIngest, "ingest", false, "ingest the dataset contexts first")
	runCmd.Flags().BoolVar(&runWipe, "wipe", false, "with --ingest, delete stored passages first")
	runCmd.Flags().BoolVar(&scoreExclude, "exclude-parse-failures", false, "leave unreadable verdicts out of the denominator")
	runCmd.Flags().StringVar(&scoreXLSX, "xlsx", "", "also write a per-question workbook to this path")
}

// parseTargets reads label:backend pairs. A bare backend gets its default label.
func parseTargets(values []string) ([]pipeline.Target, error) {
	targets := make([]pipeline.Target, 0, len(values))
	for _, v := range values {
		label, name, ok := strings.Cut(v, ":")
		if !ok {
			label, name = "", v
		}
		backend, err := pipeline.ParseBackend(name)
		if err != nil {
			return nil, fmt.Errorf("--model %q: %w", v, err)
		}
		if label == "" {
			label = defaultLabel(backend)
		}
		targets = append(targets, pipeline.Target{Label: label, Backend: backend})
	}
	return targets, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	targets, err := parseTargets(runModels)
	if err != nil {
		return err
	}
	n := need{store: true, batch: true}
	for _, s := range targets {
		if s.Backend == pipeline.BackendDirect {
			n.chat = true
		}
	}

	ds, err := loadDataset(runDataset)
	if err != nil {
		return err
	}
	limit := runLimit
	if limit <= 0 {
		limit = cfg.MaxQuestions
	}
	questions := ds.PossibleQuestions(limit)

	p, err := newPipeline(ctx, n)
	if err != nil {
		return err
	}
	watchPolls(p.Poller())

	if runWithIngest {
		if _, err := p.Ingest(ctx, ds.Documents(), runWipe); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
	}

	runs, err := p.Run(ctx, questions, targets, scorePolicy())
	if err != nil {
		return err
	}

	fmt.Println()
	snap := collector.Snapshot()
	report.Print(os.Stdout, runs, &snap)
	return exportXLSX(runs)
}
