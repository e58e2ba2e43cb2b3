package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the LLM response cache",
	}
	cmd.AddCommand(newCachePurgeCmd())
	return cmd
}

func newCachePurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired LLM cache entries",
		Args:  cobra.NoArgs,
		RunE:  runCachePurgeCommand,
	}
}

func runCachePurgeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	n, err := appInstance.PurgeCache(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired cache entries\n", n)
	return nil
}
