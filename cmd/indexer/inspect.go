package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rpattn/entityindexer/internal/domain"
	"github.com/rpattn/entityindexer/internal/repository"
)

var inspectDiff bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <entity-type> <entity-id>",
	Short: "Print the stored history and routes of an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType, err := domain.ParseEntityType(args[0])
		if err != nil {
			return err
		}
		entityID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid entity id %q: %w", args[1], err)
		}

		ctx := cmd.Context()
		store, conn, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		inspection, err := repository.Inspect(ctx, store, entityType, entityID)
		if err != nil {
			return err
		}
		if len(inspection.History) == 0 {
			return fmt.Errorf("%s %d not found", entityType, entityID)
		}
		if !inspectDiff {
			return printJSON(inspection)
		}

		diffs, err := inspection.History.Diffs()
		if err != nil {
			return err
		}
		for _, diff := range diffs {
			fmt.Print(diff)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectDiff, "diff", false, "print a unified diff per version instead of JSON")
}
