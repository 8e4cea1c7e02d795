package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func sampleIncome() []IncomeSource {
	return []IncomeSource{
		{ID: 1, JobTitle: "Engineer", Salary: d("5000"), Frequency: Monthly, Bonus: d("10000"), SalaryTaxRate: d("0.25"), TotalCompTaxRate: d("0.4")},
		{ID: 2, JobTitle: "Tutor", Salary: d("500"), Frequency: Weekly, Bonus: d("0"), SalaryTaxRate: d("0.1"), TotalCompTaxRate: d("0.1")},
	}
}

func sampleExpenses() []Expense {
	return []Expense{
		{ID: 1, Category: "Housing", SuperCategory: "Essentials", Name: "Rent", Amount: d("2000"), Frequency: Monthly, Status: StatusActive},
		{ID: 2, Category: "Food", SuperCategory: "Essentials", Name: "Groceries", Amount: d("150"), Frequency: Weekly, Status: StatusActive},
		{ID: 3, Category: "Fun", SuperCategory: "Lifestyle", Name: "Concerts", Amount: d("600"), Frequency: Quarterly, Status: StatusActive},
		{ID: 4, Category: "Housing", SuperCategory: "Essentials", Name: "Insurance", Amount: d("1200"), Frequency: Annually, Status: StatusActive},
		{ID: 5, Category: "Fun", SuperCategory: "Lifestyle", Name: "Old gym", Amount: d("50"), Frequency: Monthly, Status: StatusInactive},
	}
}

func TestSummarize(t *testing.T) {
	in := Summarize(sampleIncome())

	want := map[string]struct{ got, want decimal.Decimal }{
		"salary pre":  {in.SalaryPreTax, d("86000")}, // 60000 + 26000
		"salary tax":  {in.SalaryTaxes, d("17600")},  // 15000 + 2600
		"salary post": {in.SalaryPostTax, d("68400")},
		"bonus pre":   {in.BonusPreTax, d("10000")},
		"bonus tax":   {in.BonusTaxes, d("4000")},
		"bonus post":  {in.BonusPostTax, d("6000")},
		"total pre":   {in.TotalCompPreTax, d("96000")},
		"total tax":   {in.TotalTaxes, d("21600")},
		"total post":  {in.TotalCompPostTax, d("74400")},
	}
	for name, c := range want {
		if !c.got.Equal(c.want) {
			t.Errorf("%s = %s, want %s", name, c.got, c.want)
		}
	}
}

func TestBuildExpensePlan(t *testing.T) {
	income := Summarize(sampleIncome())
	plan := BuildExpensePlan(sampleExpenses(), income)

	if len(plan.Lines) != 4 {
		t.Fatalf("expected inactive row to be skipped, got %d lines", len(plan.Lines))
	}
	// 24000 + 7800 + 2400 + 1200
	if !plan.Total.Equal(d("35400")) {
		t.Fatalf("total = %s, want 35400", plan.Total)
	}
	if got := plan.PeriodTotals["Monthly"]; !got.Equal(d("2950")) {
		t.Fatalf("monthly total = %s, want 2950", got)
	}

	rent := plan.Lines[0]
	if !rent.Annual.Equal(d("24000")) {
		t.Fatalf("rent annual = %s", rent.Annual)
	}
	if got := rent.PerPeriod["Weekly"].StringFixed(2); got != "461.54" {
		t.Fatalf("rent weekly = %s", got)
	}
	if got := rent.PctOfCategory.StringFixed(2); got != "95.24" {
		t.Fatalf("rent %% of category = %s", got)
	}
	if got := rent.PctOfPreTax.StringFixed(2); got != "25.00" {
		t.Fatalf("rent %% of pre-tax = %s", got)
	}

	sum := decimal.Zero
	for _, l := range plan.Lines {
		sum = sum.Add(l.PctOfTotal)
	}
	if sum.Round(6).Cmp(d("100")) != 0 {
		t.Fatalf("percentages should sum to 100, got %s", sum)
	}
}

func TestBuildPlanEmpty(t *testing.T) {
	plan := BuildExpensePlan(nil, Income{})
	if !plan.Total.IsZero() || len(plan.Lines) != 0 {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
	if got := plan.PeriodTotals["Annual"]; !got.IsZero() {
		t.Fatalf("expected zero annual total, got %s", got)
	}
}

func TestUnknownFrequencyContributesNothing(t *testing.T) {
	plan := BuildExpensePlan([]Expense{
		{ID: 1, Category: "Misc", Name: "Mystery", Amount: d("99"), Frequency: "Sometimes"},
		{ID: 2, Category: "Misc", Name: "Blank", Amount: d("10"), Frequency: ""},
	}, Income{})
	if !plan.Total.Equal(d("120")) {
		t.Fatalf("total = %s, want 120", plan.Total)
	}
	if !plan.Lines[0].PctOfTotal.IsZero() {
		t.Fatalf("unknown frequency should have zero share")
	}
}

func TestGroupByCategory(t *testing.T) {
	groups := GroupByCategory(sampleExpenses())
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	order := []string{groups[0].Category, groups[1].Category, groups[2].Category}
	if diff := cmp.Diff([]string{"Housing", "Food", "Fun"}, order); diff != "" {
		t.Fatalf("group order mismatch (-want +got):\n%s", diff)
	}
	if got := groups[0].MonthlyTotal; !got.Equal(d("2100")) {
		t.Fatalf("housing monthly = %s, want 2100", got)
	}
	if len(groups[2].Expenses) != 2 {
		t.Fatalf("inactive rows should still be listed")
	}
	if got := groups[2].MonthlyTotal; !got.Equal(d("200")) {
		t.Fatalf("fun monthly = %s, want 200", got)
	}
}

func TestBudgetTotals(t *testing.T) {
	subs := []Subscription{
		{ID: 1, Name: "Music", Amount: d("10"), Frequency: Monthly},
		{ID: 2, Name: "Cloud", Amount: d("100"), Frequency: Annually},
	}
	purchases := []PlannedPurchase{
		{ID: 1, Name: "Laptop", Cost: d("2400"), Amortization: Annually},
	}
	b := NewBudget(sampleIncome(), sampleExpenses(), subs, purchases)

	if got := b.TotalExpense(); !got.Equal(d("38020")) {
		t.Fatalf("total expense = %s, want 38020", got)
	}
	if got := b.AnnualSurplus(); !got.Equal(d("36380")) {
		t.Fatalf("surplus = %s, want 36380", got)
	}
}

func TestBreakdowns(t *testing.T) {
	plan := BuildExpensePlan(append(sampleExpenses(), Expense{
		ID: 6, Category: "Gifts", Name: "Birthday", Amount: d("300"), Frequency: Annually,
	}), Income{})

	got := BySuperCategory(plan)
	want := []Share{
		{Label: "Essentials", Annual: d("33000")},
		{Label: "Lifestyle", Annual: d("2400")},
		{Label: UncategorizedLabel, Annual: d("300")},
	}
	opts := cmp.Options{decimalEqual, cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".Percent"
	}, cmp.Ignore())}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Fatalf("super category mismatch (-want +got):\n%s", diff)
	}

	essentials := EssentialsBreakdown(plan)
	wantEss := []Share{
		{Label: "Housing", Annual: d("25200")},
		{Label: "Food", Annual: d("7800")},
	}
	if diff := cmp.Diff(wantEss, essentials, opts); diff != "" {
		t.Fatalf("essentials mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscriptionShares(t *testing.T) {
	plan := BuildSubscriptionPlan([]Subscription{
		{ID: 1, Name: "Music", Amount: d("10"), Frequency: Monthly},
		{ID: 2, Name: "Video", Amount: d("15"), Frequency: Monthly},
		{ID: 3, Name: "Music", Amount: d("5"), Frequency: Monthly},
	}, Income{})

	got := SubscriptionShares(plan)
	if len(got) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(got))
	}
	// Music 180, Video 180: tie broken by label.
	if got[0].Label != "Music" || got[0].Percent.StringFixed(0) != "50" {
		t.Fatalf("unexpected first share %+v", got[0])
	}
}
