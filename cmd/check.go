package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>",
		Short: "Probe a single URL for liveness",
		Long: `Runs the same fetch-then-render liveness chain the batch run uses
against a single URL and reports the verdict.`,
		Args: cobra.ExactArgs(1),
		RunE: runCheckCommand,
	}
}

func runCheckCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	out := appInstance.CheckURL(cmd.Context(), args[0])
	if !out.Live {
		fmt.Fprintf(cmd.OutOrStdout(), "offline: %s\n", args[0])
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "live: %s (%s, status %d)\n", args[0], out.Method, out.StatusCode)
	if out.FinalURL != "" && out.FinalURL != args[0] {
		fmt.Fprintf(cmd.OutOrStdout(), "redirected to: %s\n", out.FinalURL)
	}
	return nil
}
