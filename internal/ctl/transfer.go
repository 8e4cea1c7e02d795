package ctl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"budgetdash/internal/backend"
	"budgetdash/internal/sheets"
	"budgetdash/internal/sheets/csvfile"
)

func newImportCommand(opts *options) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy every table and saved plan from one backend into another",
		Long: "Copy every table and saved plan from one backend into another.\n" +
			"Both backends use the paths from the configuration; the target tables are replaced.",
		Example: "  budgetctl import --from csv --to sqlite",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if from == to {
				return fmt.Errorf("source and target backend are both %q", from)
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg.DataBackend = from
			src, err := opts.openBackend(ctx, cmd, cfg)
			if err != nil {
				return fmt.Errorf("open %s: %w", from, err)
			}
			if src.Cleanup != nil {
				defer func() { _ = src.Cleanup() }()
			}

			cfg.DataBackend = to
			dst, err := opts.openBackend(ctx, cmd, cfg)
			if err != nil {
				return fmt.Errorf("open %s: %w", to, err)
			}
			if dst.Cleanup != nil {
				defer func() { _ = dst.Cleanup() }()
			}

			n, plans, err := copyBackend(ctx, src.Backend, dst.Backend)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rows and %d plans from %s into %s\n", n, plans, from, to)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "csv", "Source backend")
	cmd.Flags().StringVar(&to, "to", "sqlite", "Target backend")
	return cmd
}

// copyBackend replaces dst's tables and plans with src's. It returns the
// number of copied rows and plans.
func copyBackend(ctx context.Context, src, dst backend.Backend) (int, int, error) {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read source: %w", err)
	}
	if err := dst.Restore(ctx, snap); err != nil {
		return 0, 0, fmt.Errorf("write target: %w", err)
	}

	plans, err := src.ListPlans(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list source plans: %w", err)
	}
	for _, p := range plans {
		planSnap, err := src.LoadPlan(ctx, p.Name)
		if err != nil {
			return 0, 0, fmt.Errorf("load plan %q: %w", p.Name, err)
		}
		if err := dst.SavePlan(ctx, p.Name, planSnap); err != nil {
			return 0, 0, fmt.Errorf("save plan %q: %w", p.Name, err)
		}
	}
	return rowCount(snap), len(plans), nil
}

func rowCount(s sheets.Snapshot) int {
	return len(s.Expenses) + len(s.Subscriptions) + len(s.Purchases) + len(s.Income)
}

func newExportCommand(opts *options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export DIR",
		Short: "Write the tables and saved plans to a directory",
		Long: "Write the tables and saved plans to DIR.\n" +
			"csv writes one file per table plus plans/<name>.yaml; json writes snapshot.json.",
		Example: "  budgetctl export --to csv ./backup",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			result, err := opts.openBackend(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			if result.Cleanup != nil {
				defer func() { _ = result.Cleanup() }()
			}

			snap, err := result.Backend.Snapshot(ctx)
			if err != nil {
				return err
			}
			switch format {
			case "csv":
				if err := csvfile.WriteDir(dir, snap); err != nil {
					return err
				}
			case "json":
				if err := writeJSONSnapshot(dir, snap); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown export format %q (csv or json)", format)
			}

			plans, err := exportPlans(ctx, result.Backend, filepath.Join(dir, "plans"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows and %d plans to %s\n", rowCount(snap), plans, dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "to", "csv", "Export format: csv or json")
	return cmd
}

func writeJSONSnapshot(dir string, snap sheets.Snapshot) error {
	data, err := sheets.MarshalSnapshotJSON(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "snapshot.json"), data, 0o644)
}

func exportPlans(ctx context.Context, store sheets.PlanStore, dir string) (int, error) {
	plans, err := store.ListPlans(ctx)
	if err != nil {
		return 0, err
	}
	if len(plans) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	for _, p := range plans {
		snap, err := store.LoadPlan(ctx, p.Name)
		if err != nil {
			return 0, err
		}
		data, err := sheets.MarshalSnapshotYAML(snap)
		if err != nil {
			return 0, err
		}
		if err := os.WriteFile(filepath.Join(dir, p.Name+".yaml"), data, 0o644); err != nil {
			return 0, err
		}
	}
	return len(plans), nil
}
