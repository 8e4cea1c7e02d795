package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	UncategorizedLabel = "Uncategorized"
	essentialsKeyword  = "essentials"
)

// Share is one slice of a breakdown: a label, its annual amount and its
// percentage of the breakdown total.
type Share struct {
	Label   string
	Annual  decimal.Decimal
	Percent decimal.Decimal
}

// BySuperCategory aggregates expense lines by super category.
func BySuperCategory(p Plan) []Share {
	return shares(p.Lines, func(l Line) string {
		if strings.TrimSpace(l.SuperCategory) == "" {
			return UncategorizedLabel
		}
		return l.SuperCategory
	})
}

// EssentialsBreakdown aggregates by category the lines whose super category
// contains "essentials", ignoring case.
func EssentialsBreakdown(p Plan) []Share {
	var essentials []Line
	for _, l := range p.Lines {
		if strings.Contains(strings.ToLower(l.SuperCategory), essentialsKeyword) {
			essentials = append(essentials, l)
		}
	}
	return shares(essentials, func(l Line) string { return l.Category })
}

// SubscriptionShares aggregates subscription lines by name.
func SubscriptionShares(p Plan) []Share {
	return shares(p.Lines, func(l Line) string { return l.Name })
}

func shares(lines []Line, label func(Line) string) []Share {
	totals := make(map[string]decimal.Decimal)
	sum := decimal.Zero
	for _, l := range lines {
		k := label(l)
		totals[k] = totals[k].Add(l.Annual)
		sum = sum.Add(l.Annual)
	}

	out := make([]Share, 0, len(totals))
	for k, v := range totals {
		out = append(out, Share{Label: k, Annual: v, Percent: Percent(v, sum)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Annual.Cmp(out[j].Annual); c != 0 {
			return c > 0
		}
		return out[i].Label < out[j].Label
	})
	return out
}
