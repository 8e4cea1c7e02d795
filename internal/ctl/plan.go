package ctl

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"budgetdash/internal/services"
)

func newPlanCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage saved budget plans",
	}

	named := func(use, short string, run func(context.Context, *services.BudgetService, string) (string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " NAME",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withService(cmd, func(ctx context.Context, svc *services.BudgetService) error {
					msg, err := run(ctx, svc, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), msg)
					return nil
				})
			},
		}
	}

	cmd.AddCommand(
		named("save", "Save the current tables as a plan", func(ctx context.Context, svc *services.BudgetService, name string) (string, error) {
			saved, err := svc.SavePlan(ctx, name)
			return fmt.Sprintf("Saved plan %s", saved), err
		}),
		named("reset", "Replace every table with a saved plan", func(ctx context.Context, svc *services.BudgetService, name string) (string, error) {
			return fmt.Sprintf("Restored plan %s", name), svc.ResetPlan(ctx, name)
		}),
		named("delete", "Delete a saved plan", func(ctx context.Context, svc *services.BudgetService, name string) (string, error) {
			return fmt.Sprintf("Deleted plan %s", name), svc.DeletePlan(ctx, name)
		}),
		&cobra.Command{
			Use:   "list",
			Short: "List saved plans",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withService(cmd, func(ctx context.Context, svc *services.BudgetService) error {
					plans, err := svc.ListPlans(ctx)
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					if len(plans) == 0 {
						fmt.Fprintln(out, mutedStyle.Render("No saved plans."))
						return nil
					}
					rows := make([][]string, 0, len(plans))
					for _, p := range plans {
						saved := ""
						if !p.SavedAt.IsZero() {
							saved = p.SavedAt.Local().Format(time.DateTime)
						}
						rows = append(rows, []string{p.Name, saved})
					}
					fmt.Fprintln(out, renderTable([]string{"Plan", "Saved"}, rows))
					return nil
				})
			},
		},
	)
	return cmd
}
