package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Default labels used when a blank row is appended to a table.
const (
	DefaultExpenseName      = "New Expense"
	DefaultSubscriptionName = "New Subscription"
	DefaultPurchaseName     = "New Purchase"
	DefaultJobTitle         = "New Income"
)

const maxNameLength = 200

type (
	Status string

	Date struct {
		time.Time
	}

	Expense struct {
		ID            int64
		Date          Date // last updated
		Category      string
		SuperCategory string
		Name          string
		Amount        decimal.Decimal
		Frequency     Frequency
		TaxDeductible bool
		Notes         string
		Status        Status
	}

	Subscription struct {
		ID            int64
		Date          Date
		Name          string
		Amount        decimal.Decimal
		Frequency     Frequency
		TaxDeductible bool
		Notes         string
		Status        Status
	}

	// PlannedPurchase is a one-off cost spread over an amortization schedule.
	PlannedPurchase struct {
		ID           int64
		Date         Date
		Name         string
		Cost         decimal.Decimal
		Amortization Frequency
		Notes        string
		Status       Status
	}

	// IncomeSource is one job. Bonus is already an annual figure; tax rates
	// are fractions in [0, 1].
	IncomeSource struct {
		ID               int64
		JobTitle         string
		Salary           decimal.Decimal
		Frequency        Frequency
		Bonus            decimal.Decimal
		SalaryTaxRate    decimal.Decimal
		TotalCompTaxRate decimal.Decimal
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidRate   = errors.New("invalid tax rate")
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyName     = errors.New("empty name")
	ErrEmptyCategory = errors.New("empty category")
	ErrNameTooLong   = fmt.Errorf("name too long (max %d characters)", maxNameLength)
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current UTC calendar day.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate accepts ISO dates, timestamps written by spreadsheet tools and
// US-style slashes. An empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// String renders the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

func (s Status) Validate() error {
	switch s {
	case StatusActive, StatusInactive:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, string(s))
}

// ParseStatus maps a stored status to a Status; blank means Active.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active":
		return StatusActive
	case "inactive":
		return StatusInactive
	}
	return Status(strings.TrimSpace(s))
}

func (s Status) IsActive() bool {
	return s == "" || s == StatusActive
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func validateAmount(v decimal.Decimal) error {
	if v.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func validateRate(v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidRate
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if err := validateName(e.Name); err != nil {
		return err
	}
	if err := validateAmount(e.Amount); err != nil {
		return err
	}
	return e.Status.Validate()
}

func (s Subscription) Validate() error {
	if err := validateName(s.Name); err != nil {
		return err
	}
	if err := validateAmount(s.Amount); err != nil {
		return err
	}
	return s.Status.Validate()
}

func (p PlannedPurchase) Validate() error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if err := validateAmount(p.Cost); err != nil {
		return err
	}
	return p.Status.Validate()
}

func (i IncomeSource) Validate() error {
	if strings.TrimSpace(i.JobTitle) == "" {
		return fmt.Errorf("job title: %w", ErrEmptyName)
	}
	if err := validateAmount(i.Salary); err != nil {
		return fmt.Errorf("salary: %w", err)
	}
	if err := validateAmount(i.Bonus); err != nil {
		return fmt.Errorf("bonus: %w", err)
	}
	if err := validateRate(i.SalaryTaxRate); err != nil {
		return fmt.Errorf("salary tax rate: %w", err)
	}
	if err := validateRate(i.TotalCompTaxRate); err != nil {
		return fmt.Errorf("total compensation tax rate: %w", err)
	}
	return nil
}

// AnnualSalary is the salary multiplied by its pay frequency.
func (i IncomeSource) AnnualSalary() decimal.Decimal {
	return Annualize(i.Salary, i.Frequency)
}

// TotalCompensation is annual salary plus bonus.
func (i IncomeSource) TotalCompensation() decimal.Decimal {
	return i.AnnualSalary().Add(i.Bonus)
}

// NewExpense returns the blank row appended when a user adds an expense to
// category.
func NewExpense(category string) Expense {
	return Expense{
		Date:      Today(),
		Category:  category,
		Name:      DefaultExpenseName,
		Amount:    decimal.Zero,
		Frequency: Monthly,
		Status:    StatusActive,
	}
}

func NewSubscription() Subscription {
	return Subscription{
		Date:      Today(),
		Name:      DefaultSubscriptionName,
		Amount:    decimal.Zero,
		Frequency: Monthly,
		Status:    StatusActive,
	}
}

func NewPlannedPurchase() PlannedPurchase {
	return PlannedPurchase{
		Date:         Today(),
		Name:         DefaultPurchaseName,
		Cost:         decimal.Zero,
		Amortization: Annually,
		Status:       StatusActive,
	}
}

func NewIncomeSource() IncomeSource {
	return IncomeSource{
		JobTitle:         DefaultJobTitle,
		Salary:           decimal.Zero,
		Frequency:        Annually,
		Bonus:            decimal.Zero,
		SalaryTaxRate:    decimal.Zero,
		TotalCompTaxRate: decimal.Zero,
	}
}

// NextID returns max(ids)+1, or 1 for an empty table.
func NextID(ids ...int64) int64 {
	var highest int64
	for _, id := range ids {
		if id > highest {
			highest = id
		}
	}
	return highest + 1
}
