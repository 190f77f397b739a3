package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	ingestDataset string
	ingestWipe    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed every dataset context into the vector store",
	Long: `Embed every SQuAD paragraph and store it as a passage in SurrealDB.

Passages are keyed by their position in the dataset, so re-running ingest
overwrites rather than duplicates. Use --wipe after changing the embedding
model or dimension.

Examples:
  ragbench ingest
  ragbench ingest --dataset data/dev-v2.0.json
  ragbench ingest --wipe`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDataset, "dataset", "", "SQuAD file (default RAGBENCH_DATASET)")
	ingestCmd.Flags().BoolVar(&ingestWipe, "wipe", false, "delete stored passages before ingesting")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ds, err := loadDataset(ingestDataset)
	if err != nil {
		return err
	}

	p, err := newPipeline(ctx, need{store: true})
	if err != nil {
		return err
	}

	stats, err := p.Ingest(ctx, ds.Documents(), ingestWipe)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if stats.Stored != stats.Documents {
		fmt.Printf("Note: store holds %d passages for %d dataset contexts\n", stats.Stored, stats.Documents)
	}
	return nil
}
