package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Frequency is a payment cadence label as it appears in the data files.
type Frequency string

const (
	Weekly       Frequency = "Weekly"
	BiWeekly     Frequency = "Bi-Weekly"
	SemiMonthly  Frequency = "Semi-Monthly"
	Monthly      Frequency = "Monthly"
	Semester     Frequency = "Semester"
	Quarterly    Frequency = "Quarterly"
	SemiAnnually Frequency = "Semi-Annually"
	Annually     Frequency = "Annually"
)

// MonthsPerYear converts annual figures into the "/ Month" amounts shown
// next to category headings.
const MonthsPerYear = 12

// Period is a display column: an annual figure divided by PerYear.
type Period struct {
	Name    string
	PerYear int64
}

var frequencies = []Frequency{
	Weekly,
	BiWeekly,
	SemiMonthly,
	Monthly,
	Semester,
	Quarterly,
	SemiAnnually,
	Annually,
}

var multipliers = map[Frequency]int64{
	Weekly:       52,
	BiWeekly:     26,
	SemiMonthly:  24,
	Monthly:      12,
	Semester:     2,
	Quarterly:    4,
	SemiAnnually: 2,
	Annually:     1,
	"Annual":     1,
	"Yearly":     1,
}

var periods = []Period{
	{Name: "Weekly", PerYear: 52},
	{Name: "Semi-Monthly", PerYear: 24},
	{Name: "Monthly", PerYear: 12},
	{Name: "Quarterly", PerYear: 4},
	{Name: "Annual", PerYear: 1},
}

// Frequencies returns the selectable cadence labels in display order.
func Frequencies() []Frequency {
	out := make([]Frequency, len(frequencies))
	copy(out, frequencies)
	return out
}

// Periods returns the per-period columns used by summary tables.
func Periods() []Period {
	out := make([]Period, len(periods))
	copy(out, periods)
	return out
}

// PeriodByName looks up a display period, case-insensitively.
func PeriodByName(name string) (Period, bool) {
	for _, p := range periods {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return Period{}, false
}

// Multiplier returns the number of occurrences per year for a label.
// A blank label is treated as Monthly; an unknown label yields 0.
func Multiplier(f Frequency) int64 {
	label := Frequency(strings.TrimSpace(string(f)))
	if label == "" {
		label = Monthly
	}
	return multipliers[label]
}

// IsKnown reports whether the label has a non-zero multiplier.
func (f Frequency) IsKnown() bool {
	return Multiplier(f) > 0
}

func (f Frequency) String() string {
	return string(f)
}

// Annualize converts an amount paid at frequency f into its yearly total.
func Annualize(amount decimal.Decimal, f Frequency) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(Multiplier(f)))
}

// PerPeriod splits an annual figure across a display period.
func PerPeriod(annual decimal.Decimal, p Period) decimal.Decimal {
	if p.PerYear <= 0 {
		return decimal.Zero
	}
	return annual.Div(decimal.NewFromInt(p.PerYear))
}

// MonthlyEquivalent is the annual figure spread over twelve months.
func MonthlyEquivalent(annual decimal.Decimal) decimal.Decimal {
	return annual.Div(decimal.NewFromInt(MonthsPerYear))
}
