// Package core provides money parsing and formatting utilities.
//
// Amounts are shopspring decimals end to end.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ParseAmount converts user input into a non-negative decimal.
//
// It tolerates a leading "$", thousands separators and a decimal comma:
//
//	ParseAmount("1234.5")    -> 1234.5
//	ParseAmount("$1,234.50") -> 1234.5
//	ParseAmount("12,34")     -> 12.34
//	ParseAmount("")          -> 0
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return decimal.Zero, ErrInvalidAmount
	}
	s = normalizeSeparators(s)
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if v.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return v, nil
}

// normalizeSeparators resolves "1,234.50", "1.234,50" and "12,34" to a plain
// dot-decimal string. A lone comma followed by exactly three digits is read
// as a thousands separator.
func normalizeSeparators(s string) string {
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") > 1 || len(s)-comma-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}

// ParseRate reads a tax rate given either as a fraction ("0.25") or a
// percentage ("25%" or "25"). The result is a fraction in [0, 1].
func ParseRate(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	v, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return decimal.Zero, ErrInvalidRate
	}
	if percent || v.GreaterThan(one) {
		v = v.Div(hundred)
	}
	if err := validateRate(v); err != nil {
		return decimal.Zero, err
	}
	return v, nil
}

// FormatWhole renders whole dollars with thousands separators: "$1,235".
func FormatWhole(v decimal.Decimal) string {
	return formatDollars(v.Round(0).StringFixed(0))
}

// FormatCents renders dollars and cents: "$1,234.50".
func FormatCents(v decimal.Decimal) string {
	return formatDollars(v.StringFixed(2))
}

// FormatPercent renders a percentage value (already scaled by 100).
func FormatPercent(v decimal.Decimal) string {
	return v.StringFixed(2) + "%"
}

// FormatRate renders a fraction as a percentage: 0.255 -> "25.50%".
func FormatRate(v decimal.Decimal) string {
	return FormatPercent(v.Mul(hundred))
}

func formatDollars(fixed string) string {
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac, hasFrac := strings.Cut(fixed, ".")
	var b strings.Builder
	if neg && strings.Trim(fixed, "0.") != "" {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	b.WriteString(groupThousands(intPart))
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Percent returns part/whole*100, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// ComputeStep returns the increment for an amount input: one order of
// magnitude below the amount's leading digit, never less than 1.
//
//	ComputeStep(0)    -> 1
//	ComputeStep(99)   -> 1
//	ComputeStep(100)  -> 10
//	ComputeStep(2500) -> 100
func ComputeStep(amount decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 1
	}
	whole := amount.Truncate(0)
	if whole.IsZero() {
		return 1
	}
	// floor(log10(x)) is the digit count of the integer part minus one.
	step := int64(1)
	for i := 0; i < len(whole.String())-2; i++ {
		step *= 10
	}
	return step
}
