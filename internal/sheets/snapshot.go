package sheets

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"budgetdash/internal/core"
)

// Wire documents for snapshots. Amounts travel as decimal strings so that
// JSON and YAML round trips never pass through float64.
type (
	snapshotDoc struct {
		TakenAt       time.Time         `json:"taken_at" yaml:"taken_at"`
		Expenses      []expenseDoc      `json:"expenses" yaml:"expenses"`
		Subscriptions []subscriptionDoc `json:"subscriptions" yaml:"subscriptions"`
		Purchases     []purchaseDoc     `json:"planned_purchases" yaml:"planned_purchases"`
		Income        []incomeDoc       `json:"income" yaml:"income"`
	}

	expenseDoc struct {
		ID            int64  `json:"id" yaml:"id"`
		Date          string `json:"date,omitempty" yaml:"date,omitempty"`
		Category      string `json:"category" yaml:"category"`
		SuperCategory string `json:"super_category,omitempty" yaml:"super_category,omitempty"`
		Name          string `json:"name" yaml:"name"`
		Amount        string `json:"amount" yaml:"amount"`
		Frequency     string `json:"frequency" yaml:"frequency"`
		TaxDeductible bool   `json:"tax_deductible" yaml:"tax_deductible"`
		Notes         string `json:"notes,omitempty" yaml:"notes,omitempty"`
		Status        string `json:"status" yaml:"status"`
	}

	subscriptionDoc struct {
		ID            int64  `json:"id" yaml:"id"`
		Date          string `json:"date,omitempty" yaml:"date,omitempty"`
		Name          string `json:"name" yaml:"name"`
		Amount        string `json:"amount" yaml:"amount"`
		Frequency     string `json:"frequency" yaml:"frequency"`
		TaxDeductible bool   `json:"tax_deductible" yaml:"tax_deductible"`
		Notes         string `json:"notes,omitempty" yaml:"notes,omitempty"`
		Status        string `json:"status" yaml:"status"`
	}

	purchaseDoc struct {
		ID           int64  `json:"id" yaml:"id"`
		Date         string `json:"date,omitempty" yaml:"date,omitempty"`
		Name         string `json:"name" yaml:"name"`
		Cost         string `json:"cost" yaml:"cost"`
		Amortization string `json:"amortization" yaml:"amortization"`
		Notes        string `json:"notes,omitempty" yaml:"notes,omitempty"`
		Status       string `json:"status" yaml:"status"`
	}

	incomeDoc struct {
		ID               int64  `json:"id" yaml:"id"`
		JobTitle         string `json:"job_title" yaml:"job_title"`
		Salary           string `json:"salary" yaml:"salary"`
		Frequency        string `json:"frequency" yaml:"frequency"`
		Bonus            string `json:"bonus" yaml:"bonus"`
		SalaryTaxRate    string `json:"salary_tax_rate" yaml:"salary_tax_rate"`
		TotalCompTaxRate string `json:"total_comp_tax_rate" yaml:"total_comp_tax_rate"`
	}
)

// MarshalSnapshotJSON encodes a snapshot for storage in a database column.
func MarshalSnapshotJSON(s Snapshot) ([]byte, error) {
	return json.Marshal(toDoc(s))
}

// UnmarshalSnapshotJSON is the inverse of MarshalSnapshotJSON.
func UnmarshalSnapshotJSON(b []byte) (Snapshot, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return fromDoc(doc)
}

// MarshalSnapshotYAML encodes a snapshot as a human-editable plan file.
func MarshalSnapshotYAML(s Snapshot) ([]byte, error) {
	return yaml.Marshal(toDoc(s))
}

// UnmarshalSnapshotYAML is the inverse of MarshalSnapshotYAML.
func UnmarshalSnapshotYAML(b []byte) (Snapshot, error) {
	var doc snapshotDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return fromDoc(doc)
}

func toDoc(s Snapshot) snapshotDoc {
	doc := snapshotDoc{TakenAt: s.TakenAt.UTC()}
	for _, e := range s.Expenses {
		doc.Expenses = append(doc.Expenses, expenseDoc{
			ID:            e.ID,
			Date:          e.Date.String(),
			Category:      e.Category,
			SuperCategory: e.SuperCategory,
			Name:          e.Name,
			Amount:        e.Amount.String(),
			Frequency:     string(e.Frequency),
			TaxDeductible: e.TaxDeductible,
			Notes:         e.Notes,
			Status:        string(e.Status),
		})
	}
	for _, sub := range s.Subscriptions {
		doc.Subscriptions = append(doc.Subscriptions, subscriptionDoc{
			ID:            sub.ID,
			Date:          sub.Date.String(),
			Name:          sub.Name,
			Amount:        sub.Amount.String(),
			Frequency:     string(sub.Frequency),
			TaxDeductible: sub.TaxDeductible,
			Notes:         sub.Notes,
			Status:        string(sub.Status),
		})
	}
	for _, p := range s.Purchases {
		doc.Purchases = append(doc.Purchases, purchaseDoc{
			ID:           p.ID,
			Date:         p.Date.String(),
			Name:         p.Name,
			Cost:         p.Cost.String(),
			Amortization: string(p.Amortization),
			Notes:        p.Notes,
			Status:       string(p.Status),
		})
	}
	for _, i := range s.Income {
		doc.Income = append(doc.Income, incomeDoc{
			ID:               i.ID,
			JobTitle:         i.JobTitle,
			Salary:           i.Salary.String(),
			Frequency:        string(i.Frequency),
			Bonus:            i.Bonus.String(),
			SalaryTaxRate:    i.SalaryTaxRate.String(),
			TotalCompTaxRate: i.TotalCompTaxRate.String(),
		})
	}
	return doc
}

func fromDoc(doc snapshotDoc) (Snapshot, error) {
	s := Snapshot{TakenAt: doc.TakenAt}
	for n, e := range doc.Expenses {
		date, err := core.ParseDate(e.Date)
		if err != nil {
			return Snapshot{}, fmt.Errorf("expense %d: %w", n+1, err)
		}
		amount, err := decimal.NewFromString(e.Amount)
		if err != nil {
			return Snapshot{}, fmt.Errorf("expense %d amount: %w", n+1, err)
		}
		s.Expenses = append(s.Expenses, core.Expense{
			ID:            e.ID,
			Date:          date,
			Category:      e.Category,
			SuperCategory: e.SuperCategory,
			Name:          e.Name,
			Amount:        amount,
			Frequency:     core.Frequency(e.Frequency),
			TaxDeductible: e.TaxDeductible,
			Notes:         e.Notes,
			Status:        core.ParseStatus(e.Status),
		})
	}
	for n, sub := range doc.Subscriptions {
		date, err := core.ParseDate(sub.Date)
		if err != nil {
			return Snapshot{}, fmt.Errorf("subscription %d: %w", n+1, err)
		}
		amount, err := decimal.NewFromString(sub.Amount)
		if err != nil {
			return Snapshot{}, fmt.Errorf("subscription %d amount: %w", n+1, err)
		}
		s.Subscriptions = append(s.Subscriptions, core.Subscription{
			ID:            sub.ID,
			Date:          date,
			Name:          sub.Name,
			Amount:        amount,
			Frequency:     core.Frequency(sub.Frequency),
			TaxDeductible: sub.TaxDeductible,
			Notes:         sub.Notes,
			Status:        core.ParseStatus(sub.Status),
		})
	}
	for n, p := range doc.Purchases {
		date, err := core.ParseDate(p.Date)
		if err != nil {
			return Snapshot{}, fmt.Errorf("purchase %d: %w", n+1, err)
		}
		cost, err := decimal.NewFromString(p.Cost)
		if err != nil {
			return Snapshot{}, fmt.Errorf("purchase %d cost: %w", n+1, err)
		}
		s.Purchases = append(s.Purchases, core.PlannedPurchase{
			ID:           p.ID,
			Date:         date,
			Name:         p.Name,
			Cost:         cost,
			Amortization: core.Frequency(p.Amortization),
			Notes:        p.Notes,
			Status:       core.ParseStatus(p.Status),
		})
	}
	for n, i := range doc.Income {
		src := core.IncomeSource{ID: i.ID, JobTitle: i.JobTitle, Frequency: core.Frequency(i.Frequency)}
		var err error
		fields := []struct {
			dst *decimal.Decimal
			raw string
		}{
			{&src.Salary, i.Salary},
			{&src.Bonus, i.Bonus},
			{&src.SalaryTaxRate, i.SalaryTaxRate},
			{&src.TotalCompTaxRate, i.TotalCompTaxRate},
		}
		for _, f := range fields {
			if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
				return Snapshot{}, fmt.Errorf("income %d: %w", n+1, err)
			}
		}
		s.Income = append(s.Income, src)
	}
	return s, nil
}
