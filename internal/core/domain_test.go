package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2025-01-31", "2025-01-31", true},
		{"2025-01-31 00:00:00", "2025-01-31", true},
		{"01/31/2025", "2025-01-31", true},
		{"", "", true},
		{"31.01.2025", "", false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.want {
				t.Fatalf("%q expected %q, got %q (err=%v)", tc.in, tc.want, got.String(), err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", tc.in, err)
		}
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"":          StatusActive,
		"active":    StatusActive,
		" Active ":  StatusActive,
		"INACTIVE":  StatusInactive,
		"Cancelled": Status("Cancelled"),
	}
	for in, want := range cases {
		if got := ParseStatus(in); got != want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", in, got, want)
		}
	}
	if err := Status("Cancelled").Validate(); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestExpenseValidate(t *testing.T) {
	good := NewExpense("Housing")
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		mut  func(*Expense)
		want error
	}{
		{"blank category", func(e *Expense) { e.Category = "  " }, ErrEmptyCategory},
		{"blank name", func(e *Expense) { e.Name = "" }, ErrEmptyName},
		{"negative amount", func(e *Expense) { e.Amount = d("-1") }, ErrInvalidAmount},
		{"bad status", func(e *Expense) { e.Status = "Paused" }, ErrInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := good
			tc.mut(&e)
			if err := e.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestIncomeSourceValidate(t *testing.T) {
	src := IncomeSource{
		JobTitle:         "Engineer",
		Salary:           d("5000"),
		Frequency:        Monthly,
		Bonus:            d("10000"),
		SalaryTaxRate:    d("0.3"),
		TotalCompTaxRate: d("0.35"),
	}
	if err := src.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if got := src.TotalCompensation(); !got.Equal(d("70000")) {
		t.Fatalf("total compensation = %s, want 70000", got)
	}

	bad := src
	bad.SalaryTaxRate = d("1.5")
	if err := bad.Validate(); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
	bad = src
	bad.JobTitle = ""
	err := bad.Validate()
	if !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "job title: ") {
		t.Errorf("error %q should name the job title field", err)
	}
}

func TestNewRowDefaults(t *testing.T) {
	e := NewExpense("Food")
	if e.Name != "New Expense" || e.Frequency != Monthly || !e.Amount.IsZero() || e.Status != StatusActive {
		t.Fatalf("unexpected expense defaults: %+v", e)
	}
	if e.Date.IsZero() {
		t.Fatalf("expected today's date")
	}
	if p := NewPlannedPurchase(); p.Amortization != Annually {
		t.Fatalf("expected annual amortization, got %q", p.Amortization)
	}
}

func TestNextID(t *testing.T) {
	if got := NextID(); got != 1 {
		t.Fatalf("empty table: got %d, want 1", got)
	}
	if got := NextID(3, 9, 4); got != 10 {
		t.Fatalf("got %d, want 10", got)
	}
}
