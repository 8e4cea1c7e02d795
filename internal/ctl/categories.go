package ctl

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"budgetdash/internal/core"
	"budgetdash/internal/services"
)

func newCategoriesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List expense categories with their totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *services.BudgetService) error {
				sum, err := svc.Summary(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(sum.Categories) == 0 {
					fmt.Fprintln(out, mutedStyle.Render("No categories yet."))
					return nil
				}
				rows := make([][]string, 0, len(sum.Categories))
				for _, g := range sum.Categories {
					rows = append(rows, []string{
						g.Category,
						strconv.Itoa(len(g.Expenses)),
						core.FormatWhole(g.Annual),
						core.FormatWhole(g.MonthlyTotal),
					})
				}
				fmt.Fprintln(out, title("CATEGORIES"))
				fmt.Fprintln(out, renderTable([]string{"Category", "Rows", "Annual", "/ Month"}, rows, 1, 2, 3))
				return nil
			})
		},
	}
}
