// Package ctl implements budgetctl, the operator CLI for budgetdash data.
package ctl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"budgetdash/internal/backend"
	"budgetdash/internal/config"
	"budgetdash/internal/services"
)

type options struct {
	configFile string
	dataDir    string
	backend    string
	verbose    bool
}

// NewRootCommand builds the budgetctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Inspect and maintain budgetdash data",
		Long:          "Print budget summaries, move data between backends and manage saved plans.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "TOML config file (overrides BUDGET_CONFIG_FILE)")
	root.PersistentFlags().StringVarP(&opts.dataDir, "data-dir", "d", "", "Data directory for the csv and memory backends")
	root.PersistentFlags().StringVarP(&opts.backend, "backend", "b", "", "Data backend: csv, sqlite or memory")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log backend activity to stderr")

	root.AddCommand(
		newSummaryCommand(opts),
		newCategoriesCommand(opts),
		newImportCommand(opts),
		newExportCommand(opts),
		newPlanCommand(opts),
		newMigrateCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// Execute runs budgetctl and exits non-zero on failure.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// loadConfig applies the flags on top of the file and environment layers.
func (o *options) loadConfig() (*config.Config, error) {
	if o.configFile != "" {
		if err := os.Setenv("BUDGET_CONFIG_FILE", o.configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.backend != "" {
		cfg.DataBackend = o.backend
	}
	return cfg, nil
}

func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// openBackend opens the backend described by cfg without a file watcher.
func (o *options) openBackend(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	bc.WatchFiles = false
	return backend.NewFactory(o.logger(cmd)).CreateBackend(ctx, bc)
}

// withService runs fn against a service over the configured backend.
func (o *options) withService(cmd *cobra.Command, fn func(context.Context, *services.BudgetService) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := o.openBackend(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	if result.Cleanup != nil {
		defer func() { _ = result.Cleanup() }()
	}
	return fn(ctx, services.NewBudgetService(result.Backend, nil, nil))
}
