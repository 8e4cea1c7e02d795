package http

import (
	"html/template"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"budgetdash/internal/core"
)

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// userMessage turns an error into a sentence for the error banner.
func userMessage(err error) string {
	msg := err.Error()
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}

// templateFuncs are available to every page and partial.
var templateFuncs = template.FuncMap{
	"money":   core.FormatWhole,
	"cents":   core.FormatCents,
	"percent": core.FormatPercent,
	"rate":    core.FormatRate,
	"step":    core.ComputeStep,
	"period": func(values map[string]decimal.Decimal, name string) decimal.Decimal {
		return values[name]
	},
	"plain": func(v decimal.Decimal) string {
		return v.StringFixed(2)
	},
	// ratePercent renders a fraction as a plain percentage for inputs.
	"ratePercent": func(v decimal.Decimal) string {
		return v.Mul(decimal.NewFromInt(100)).StringFixed(2)
	},
	// width maps a share percentage to a bar width, keeping tiny values visible.
	"width": func(pct decimal.Decimal) int {
		w := int(pct.Round(0).IntPart())
		if pct.IsPositive() && w < 2 {
			w = 2
		}
		if w > 100 {
			w = 100
		}
		return w
	},
}
