package main

import (
	"github.com/spf13/cobra"

	"github.com/rpattn/entityindexer/internal/blocksource"
	"github.com/rpattn/entityindexer/internal/domain"
	"github.com/rpattn/entityindexer/internal/processor"
	"github.com/rpattn/entityindexer/internal/repository"
	"github.com/rpattn/entityindexer/internal/repository/memory"
)

var (
	dryRunFile   string
	dryRunMemory bool
)

var dryRunCmd = &cobra.Command{
	Use:   "dryrun",
	Short: "Validate blocks from a file without committing",
	Long: "Runs the blocks in --file through the pipeline in order inside one discarded transaction and prints the outcomes. " +
		"With --memory the run starts from an empty in-process store instead of Postgres.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var store repository.Store
		if dryRunMemory {
			store = memory.NewStore()
		} else {
			pgStore, conn, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			store = pgStore
		}

		p := processor.New(store, registry(), processor.WithLogger(logger))
		source := blocksource.NewFileSource(dryRunFile, logger)
		return p.DryRunBlocks(ctx,
			func(fn func(domain.Block) error) error { return source.Each(ctx, fn) },
			func(result domain.BlockResult) error { return printJSON(result) })
	},
}

func init() {
	dryRunCmd.Flags().StringVar(&dryRunFile, "file", "", "JSON-lines block file")
	dryRunCmd.Flags().BoolVar(&dryRunMemory, "memory", false, "dry run against an empty in-memory store")
	_ = dryRunCmd.MarkFlagRequired("file")
}
