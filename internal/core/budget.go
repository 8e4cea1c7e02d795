package core

import (
	"github.com/shopspring/decimal"
)

// Line is one annualized row of a budget table.
type Line struct {
	ID            int64
	Date          Date
	Category      string
	SuperCategory string
	Name          string
	Amount        decimal.Decimal
	Frequency     Frequency
	Annual        decimal.Decimal
	PerPeriod     map[string]decimal.Decimal

	PctOfTotal    decimal.Decimal
	PctOfCategory decimal.Decimal
	PctOfPreTax   decimal.Decimal
	PctOfAfterTax decimal.Decimal
}

// Plan is the annualized view of a table together with its totals.
type Plan struct {
	Lines        []Line
	Total        decimal.Decimal
	PeriodTotals map[string]decimal.Decimal
}

// Income aggregates salary, bonus and tax figures across income sources.
type Income struct {
	Sources []IncomeSource

	SalaryPreTax  decimal.Decimal
	SalaryTaxes   decimal.Decimal
	SalaryPostTax decimal.Decimal

	BonusPreTax  decimal.Decimal
	BonusTaxes   decimal.Decimal
	BonusPostTax decimal.Decimal

	TotalCompPreTax  decimal.Decimal
	TotalTaxes       decimal.Decimal
	TotalCompPostTax decimal.Decimal
}

// CategoryGroup is one expander on the budget page.
type CategoryGroup struct {
	Category     string
	Expenses     []Expense
	Annual       decimal.Decimal
	MonthlyTotal decimal.Decimal
}

// Budget is the top-level aggregation of every cash-flow table.
type Budget struct {
	Income        Income
	Expenses      Plan
	Subscriptions Plan
	Purchases     Plan
}

// Summarize computes the income aggregates for a set of sources.
func Summarize(sources []IncomeSource) Income {
	in := Income{Sources: sources}
	for _, s := range sources {
		annual := s.AnnualSalary()
		in.SalaryPreTax = in.SalaryPreTax.Add(annual)
		in.SalaryTaxes = in.SalaryTaxes.Add(annual.Mul(s.SalaryTaxRate))
		in.BonusPreTax = in.BonusPreTax.Add(s.Bonus)
		in.BonusTaxes = in.BonusTaxes.Add(s.Bonus.Mul(s.TotalCompTaxRate))
	}
	in.SalaryPostTax = in.SalaryPreTax.Sub(in.SalaryTaxes)
	in.BonusPostTax = in.BonusPreTax.Sub(in.BonusTaxes)
	in.TotalCompPreTax = in.SalaryPreTax.Add(in.BonusPreTax)
	in.TotalTaxes = in.SalaryTaxes.Add(in.BonusTaxes)
	in.TotalCompPostTax = in.TotalCompPreTax.Sub(in.TotalTaxes)
	return in
}

// BuildExpensePlan annualizes the active expenses and fills in every
// percentage column. Income may be the zero value, in which case the
// income-relative percentages are zero.
func BuildExpensePlan(expenses []Expense, income Income) Plan {
	lines := make([]Line, 0, len(expenses))
	for _, e := range expenses {
		if !e.Status.IsActive() {
			continue
		}
		lines = append(lines, Line{
			ID:            e.ID,
			Date:          e.Date,
			Category:      e.Category,
			SuperCategory: e.SuperCategory,
			Name:          e.Name,
			Amount:        e.Amount,
			Frequency:     e.Frequency,
		})
	}
	return finishPlan(lines, income)
}

// BuildSubscriptionPlan annualizes active subscriptions.
func BuildSubscriptionPlan(subs []Subscription, income Income) Plan {
	lines := make([]Line, 0, len(subs))
	for _, s := range subs {
		if !s.Status.IsActive() {
			continue
		}
		lines = append(lines, Line{
			ID:        s.ID,
			Date:      s.Date,
			Name:      s.Name,
			Amount:    s.Amount,
			Frequency: s.Frequency,
		})
	}
	return finishPlan(lines, income)
}

// BuildPurchasePlan annualizes active planned purchases using their
// amortization method as the frequency.
func BuildPurchasePlan(purchases []PlannedPurchase, income Income) Plan {
	lines := make([]Line, 0, len(purchases))
	for _, p := range purchases {
		if !p.Status.IsActive() {
			continue
		}
		lines = append(lines, Line{
			ID:        p.ID,
			Date:      p.Date,
			Name:      p.Name,
			Amount:    p.Cost,
			Frequency: p.Amortization,
		})
	}
	return finishPlan(lines, income)
}

func finishPlan(lines []Line, income Income) Plan {
	total := decimal.Zero
	byCategory := make(map[string]decimal.Decimal)
	for i := range lines {
		lines[i].Annual = Annualize(lines[i].Amount, lines[i].Frequency)
		total = total.Add(lines[i].Annual)
		byCategory[lines[i].Category] = byCategory[lines[i].Category].Add(lines[i].Annual)
	}

	for i := range lines {
		l := &lines[i]
		l.PerPeriod = make(map[string]decimal.Decimal, len(periods))
		for _, p := range periods {
			l.PerPeriod[p.Name] = PerPeriod(l.Annual, p)
		}
		l.PctOfTotal = Percent(l.Annual, total)
		l.PctOfCategory = Percent(l.Annual, byCategory[l.Category])
		l.PctOfPreTax = Percent(l.Annual, income.TotalCompPreTax)
		l.PctOfAfterTax = Percent(l.Annual, income.TotalCompPostTax)
	}

	return Plan{
		Lines:        lines,
		Total:        total,
		PeriodTotals: periodTotals(total),
	}
}

func periodTotals(annual decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(periods))
	for _, p := range periods {
		out[p.Name] = PerPeriod(annual, p)
	}
	return out
}

// GroupByCategory groups expenses by category in first-seen order. Totals
// only count active rows; inactive rows are still listed so they can be
// edited.
func GroupByCategory(expenses []Expense) []CategoryGroup {
	index := make(map[string]int)
	var groups []CategoryGroup
	for _, e := range expenses {
		i, ok := index[e.Category]
		if !ok {
			i = len(groups)
			index[e.Category] = i
			groups = append(groups, CategoryGroup{Category: e.Category, Annual: decimal.Zero})
		}
		g := &groups[i]
		g.Expenses = append(g.Expenses, e)
		if e.Status.IsActive() {
			g.Annual = g.Annual.Add(Annualize(e.Amount, e.Frequency))
		}
	}
	for i := range groups {
		groups[i].MonthlyTotal = MonthlyEquivalent(groups[i].Annual)
	}
	return groups
}

// Categories returns the distinct non-blank categories in first-seen order.
func Categories(expenses []Expense) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range expenses {
		if e.Category == "" || seen[e.Category] {
			continue
		}
		seen[e.Category] = true
		out = append(out, e.Category)
	}
	return out
}

// NewBudget builds every plan from the raw tables.
func NewBudget(sources []IncomeSource, expenses []Expense, subs []Subscription, purchases []PlannedPurchase) Budget {
	income := Summarize(sources)
	return Budget{
		Income:        income,
		Expenses:      BuildExpensePlan(expenses, income),
		Subscriptions: BuildSubscriptionPlan(subs, income),
		Purchases:     BuildPurchasePlan(purchases, income),
	}
}

// TotalExpense is the annual cost of expenses, subscriptions and planned
// purchases combined.
func (b Budget) TotalExpense() decimal.Decimal {
	return b.Expenses.Total.Add(b.Subscriptions.Total).Add(b.Purchases.Total)
}

// AnnualSurplus is after-tax compensation minus total expense.
func (b Budget) AnnualSurplus() decimal.Decimal {
	return b.Income.TotalCompPostTax.Sub(b.TotalExpense())
}
