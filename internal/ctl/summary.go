package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"budgetdash/internal/core"
	"budgetdash/internal/services"
)

func newSummaryCommand(opts *options) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the budget tables and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, ok := core.PeriodByName(period)
			if !ok {
				return fmt.Errorf("unknown period %q", period)
			}
			return opts.withService(cmd, func(ctx context.Context, svc *services.BudgetService) error {
				sum, err := svc.Summary(ctx)
				if err != nil {
					return err
				}
				writeSummary(cmd.OutOrStdout(), sum, p)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", "Monthly", "Period column to show next to annual figures")
	return cmd
}

func writeSummary(w io.Writer, sum services.Summary, p core.Period) {
	b := sum.Budget
	in := b.Income

	fmt.Fprintln(w, title("INCOME"))
	fmt.Fprintln(w, renderTable(
		[]string{"", "Pre-tax", "Taxes", "Post-tax"},
		[][]string{
			{"Salary", core.FormatWhole(in.SalaryPreTax), core.FormatWhole(in.SalaryTaxes), core.FormatWhole(in.SalaryPostTax)},
			{"Bonus", core.FormatWhole(in.BonusPreTax), core.FormatWhole(in.BonusTaxes), core.FormatWhole(in.BonusPostTax)},
			{"Total compensation", core.FormatWhole(in.TotalCompPreTax), core.FormatWhole(in.TotalTaxes), core.FormatWhole(in.TotalCompPostTax)},
		}, 1, 2, 3))

	writePlan(w, "EXPENSES", b.Expenses, p, true)
	writePlan(w, "SUBSCRIPTIONS", b.Subscriptions, p, false)
	writePlan(w, "PLANNED PURCHASES", b.Purchases, p, false)

	surplus := b.AnnualSurplus()
	style := positiveStyle
	if surplus.IsNegative() {
		style = errorStyle
	}
	fmt.Fprintln(w, title("TOTALS"))
	fmt.Fprintln(w, renderTable(
		[]string{"", "Annual", p.Name},
		[][]string{
			{"Total expense", core.FormatWhole(b.TotalExpense()), core.FormatWhole(core.PerPeriod(b.TotalExpense(), p))},
			{"Surplus", style.Render(core.FormatWhole(surplus)), style.Render(core.FormatWhole(core.PerPeriod(surplus, p)))},
		}, 1, 2))
}

func writePlan(w io.Writer, heading string, plan core.Plan, p core.Period, withCategory bool) {
	fmt.Fprintln(w, title(heading))
	if len(plan.Lines) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No rows."))
		return
	}

	headers := []string{"Name", "Amount", "Frequency", "Annual", p.Name, "% after tax"}
	numeric := []int{1, 3, 4, 5}
	if withCategory {
		headers = append([]string{"Category"}, headers...)
		numeric = []int{2, 4, 5, 6}
	}

	rows := make([][]string, 0, len(plan.Lines)+1)
	for _, l := range plan.Lines {
		row := []string{
			l.Name,
			core.FormatCents(l.Amount),
			l.Frequency.String(),
			core.FormatWhole(l.Annual),
			core.FormatWhole(l.PerPeriod[p.Name]),
			core.FormatPercent(l.PctOfAfterTax),
		}
		if withCategory {
			row = append([]string{l.Category}, row...)
		}
		rows = append(rows, row)
	}
	total := []string{"Total", "", "", core.FormatWhole(plan.Total), core.FormatWhole(plan.PeriodTotals[p.Name]), ""}
	if withCategory {
		total = append([]string{""}, total...)
	}
	rows = append(rows, total)

	fmt.Fprintln(w, renderTable(headers, rows, numeric...))
}
