package http

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"budgetdash/internal/core"
	blog "budgetdash/internal/log"
	"budgetdash/internal/sheets"
)

// pageMeta is embedded in every full-page view for the layout.
type pageMeta struct {
	Title string
	Nav   string
}

type dashboardView struct {
	pageMeta
	Budget          core.Budget
	TotalExpense    decimal.Decimal
	AnnualSurplus   decimal.Decimal
	SuperCategories []core.Share
	Essentials      []core.Share
	Subscriptions   []core.Share
}

// periodRow is one row of the budget summary: income, spending and surplus
// for a display period.
type periodRow struct {
	Name    string
	Income  decimal.Decimal
	Expense decimal.Decimal
	Surplus decimal.Decimal
}

// groupView is one category expander with the options its rows need.
type groupView struct {
	core.CategoryGroup
	Frequencies []core.Frequency
}

type budgetView struct {
	pageMeta
	Periods     []core.Period
	Summary     []periodRow
	Budget      core.Budget
	Groups      []groupView
	Frequencies []core.Frequency
	Plans       []sheets.PlanInfo
}

// handleDashboard renders income and budget metrics plus the chart tables.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r.Context())
	if err != nil {
		s.fail(w, r, err, blog.OpRead)
		return
	}
	s.render(w, r, "dashboard_page", dashboardView{
		pageMeta:        pageMeta{Title: "Dashboard", Nav: "dashboard"},
		Budget:          sum.Budget,
		TotalExpense:    sum.Budget.TotalExpense(),
		AnnualSurplus:   sum.Budget.AnnualSurplus(),
		SuperCategories: sum.SuperCategories,
		Essentials:      sum.Essentials,
		Subscriptions:   sum.SubscriptionShares,
	})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	view, err := s.budgetView(r.Context())
	if err != nil {
		s.fail(w, r, err, blog.OpRead)
		return
	}
	s.render(w, r, "budget_page", view)
}

func (s *Server) budgetView(ctx context.Context) (budgetView, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return budgetView{}, err
	}
	freqs := s.frequencyOptions(ctx)
	plans, err := s.svc.ListPlans(ctx)
	if err != nil {
		return budgetView{}, err
	}

	view := budgetView{
		pageMeta:    pageMeta{Title: "Budget", Nav: "budget"},
		Periods:     core.Periods(),
		Summary:     periodSummary(sum.Budget),
		Budget:      sum.Budget,
		Frequencies: freqs,
		Plans:       plans,
	}
	for _, g := range sum.Categories {
		view.Groups = append(view.Groups, groupView{CategoryGroup: g, Frequencies: freqs})
	}
	return view, nil
}

func periodSummary(b core.Budget) []periodRow {
	income := b.Income.TotalCompPostTax
	expense := b.TotalExpense()
	surplus := b.AnnualSurplus()

	rows := make([]periodRow, 0, len(core.Periods()))
	for _, p := range core.Periods() {
		rows = append(rows, periodRow{
			Name:    p.Name,
			Income:  core.PerPeriod(income, p),
			Expense: core.PerPeriod(expense, p),
			Surplus: core.PerPeriod(surplus, p),
		})
	}
	return rows
}

// categoryFragment renders the expander for category, or "" when the
// category has no rows left.
func (s *Server) categoryFragment(ctx context.Context, category string) (string, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return "", err
	}
	freqs := s.frequencyOptions(ctx)
	for _, g := range sum.Categories {
		if g.Category == category {
			return s.executeTemplate("category_group", groupView{CategoryGroup: g, Frequencies: freqs})
		}
	}
	return "", nil
}

// plansFragment renders the saved-plans panel of the budget page.
func (s *Server) plansFragment(ctx context.Context) (string, error) {
	plans, err := s.svc.ListPlans(ctx)
	if err != nil {
		return "", err
	}
	return s.executeTemplate("plans_panel", struct{ Plans []sheets.PlanInfo }{plans})
}
