// Package cmd defines the CLI commands for the enricher executable.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mlpeters/bookmark-enricher/internal/app"
	"github.com/mlpeters/bookmark-enricher/internal/bookmark"
	"github.com/mlpeters/bookmark-enricher/internal/config"
	"github.com/mlpeters/bookmark-enricher/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the subcommands need from the wired application. It is
// an interface so tests can swap in a fake via newApp.
type App interface {
	RunBatch(ctx context.Context, inputPath, outputPath string) error
	CheckURL(ctx context.Context, rawURL string) bookmark.LivenessOutcome
	PurgeCache(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

// newApp builds the application from config. It is a variable so the
// command tests can replace it with a fake factory.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enricher",
		Short: "Checks and enriches a Pinboard-style bookmark export.",
		Long: `enricher reads a bookmark export, probes each bookmark for liveness
(plain HTTP first, headless browser as a fallback), extracts the main
page content, asks an LLM for a summary and tag suggestions, lints
tags against a blessed set, and writes the enriched export back out.`,

		SilenceUsage: true,

		// Build the application once, after flags are parsed, and hand
		// it to subcommands through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// Shutdown gets its own deadline: the run context may already
		// be cancelled when we arrive here on SIGINT.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			appInstance, ok := cmd.Context().Value(appKey).(App)
			if !ok || appInstance == nil {
				return
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := appInstance.Close(shutdownCtx); err != nil {
				zap.L().Warn("shutdown error", zap.Error(err))
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is env-only configuration)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newCacheCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and reports the process exit code.
func Execute(ctx context.Context) int {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
