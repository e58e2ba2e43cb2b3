package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <input.json> <output.json>",
		Short: "Enrich a bookmark export",
		Long: `Reads the bookmark export at <input.json>, checks and enriches every
bookmark, and writes the result to <output.json>. An interrupted run
still writes the output: bookmarks that were processed keep their
enrichment and the rest pass through unchanged.`,
		Args: cobra.ExactArgs(2),
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	err = appInstance.RunBatch(cmd.Context(), args[0], args[1])
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		// The partial output is already on disk.
		fmt.Fprintln(cmd.OutOrStdout(), "run interrupted, partial output written")
		return nil
	default:
		return fmt.Errorf("run batch: %w", err)
	}
}
