package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"budgetdash/internal/core"
	"budgetdash/internal/sheets"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type scanner interface {
	Scan(dest ...any) error
}

// nullableID lets INSERT fall back to SQLite's rowid assignment, which is
// max(id)+1 for a table without AUTOINCREMENT.
func nullableID(id int64, keep bool) any {
	if keep && id > 0 {
		return id
	}
	return nil
}

func parseStoredDate(s string) core.Date {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}
	}
	return d
}

// Expenses

const expenseColumns = `id, date, category, super_category, name, amount, frequency, tax_deductible, notes, status`

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e            core.Expense
		date, status string
		freq         string
	)
	if err := s.Scan(&e.ID, &date, &e.Category, &e.SuperCategory, &e.Name, &e.Amount, &freq, &e.TaxDeductible, &e.Notes, &status); err != nil {
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}
	e.Date = parseStoredDate(date)
	e.Frequency = core.Frequency(freq)
	e.Status = core.ParseStatus(status)
	return e, nil
}

func listExpenses(ctx context.Context, q querier) ([]core.Expense, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertExpense(ctx context.Context, q querier, e core.Expense, keepID bool) (int64, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableID(e.ID, keepID), e.Date.String(), e.Category, e.SuperCategory, e.Name, e.Amount,
		string(e.Frequency), e.TaxDeductible, e.Notes, string(e.Status))
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	return listExpenses(ctx, r.db)
}

func (r *SQLiteRepository) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	id, err := insertExpense(ctx, r.db, e, false)
	if err != nil {
		return core.Expense{}, err
	}
	e.ID = id

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"category", e.Category,
		"name", e.Name,
		"amount", e.Amount.String())
	return e, nil
}

func (r *SQLiteRepository) SaveExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET date = ?, category = ?, super_category = ?, name = ?, amount = ?,
			frequency = ?, tax_deductible = ?, notes = ?, status = ?
		WHERE id = ?`,
		e.Date.String(), e.Category, e.SuperCategory, e.Name, e.Amount,
		string(e.Frequency), e.TaxDeductible, e.Notes, string(e.Status), e.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return expectOne(res, sheets.TableExpenses, e.ID)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return expectOne(res, sheets.TableExpenses, id)
}

// Subscriptions

const subscriptionColumns = `id, date, name, amount, frequency, tax_deductible, notes, status`

func scanSubscription(s scanner) (core.Subscription, error) {
	var (
		sub                core.Subscription
		date, freq, status string
	)
	if err := s.Scan(&sub.ID, &date, &sub.Name, &sub.Amount, &freq, &sub.TaxDeductible, &sub.Notes, &status); err != nil {
		return core.Subscription{}, fmt.Errorf("scan subscription: %w", err)
	}
	sub.Date = parseStoredDate(date)
	sub.Frequency = core.Frequency(freq)
	sub.Status = core.ParseStatus(status)
	return sub, nil
}

func listSubscriptions(ctx context.Context, q querier) ([]core.Subscription, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []core.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func insertSubscription(ctx context.Context, q querier, s core.Subscription, keepID bool) (int64, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableID(s.ID, keepID), s.Date.String(), s.Name, s.Amount, string(s.Frequency), s.TaxDeductible, s.Notes, string(s.Status))
	if err != nil {
		return 0, fmt.Errorf("insert subscription: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListSubscriptions(ctx context.Context) ([]core.Subscription, error) {
	return listSubscriptions(ctx, r.db)
}

func (r *SQLiteRepository) AddSubscription(ctx context.Context, s core.Subscription) (core.Subscription, error) {
	id, err := insertSubscription(ctx, r.db, s, false)
	if err != nil {
		return core.Subscription{}, err
	}
	s.ID = id
	slog.InfoContext(ctx, "Subscription saved to SQLite", "id", s.ID, "name", s.Name)
	return s, nil
}

func (r *SQLiteRepository) SaveSubscription(ctx context.Context, s core.Subscription) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions SET date = ?, name = ?, amount = ?, frequency = ?, tax_deductible = ?, notes = ?, status = ?
		WHERE id = ?`,
		s.Date.String(), s.Name, s.Amount, string(s.Frequency), s.TaxDeductible, s.Notes, string(s.Status), s.ID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return expectOne(res, sheets.TableSubscriptions, s.ID)
}

func (r *SQLiteRepository) DeleteSubscription(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return expectOne(res, sheets.TableSubscriptions, id)
}

// Planned purchases

const purchaseColumns = `id, date, name, cost, amortization, notes, status`

func scanPurchase(s scanner) (core.PlannedPurchase, error) {
	var (
		p                   core.PlannedPurchase
		date, amort, status string
	)
	if err := s.Scan(&p.ID, &date, &p.Name, &p.Cost, &amort, &p.Notes, &status); err != nil {
		return core.PlannedPurchase{}, fmt.Errorf("scan planned purchase: %w", err)
	}
	p.Date = parseStoredDate(date)
	p.Amortization = core.Frequency(amort)
	p.Status = core.ParseStatus(status)
	return p, nil
}

func listPurchases(ctx context.Context, q querier) ([]core.PlannedPurchase, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+purchaseColumns+` FROM planned_purchases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list planned purchases: %w", err)
	}
	defer rows.Close()

	var out []core.PlannedPurchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func insertPurchase(ctx context.Context, q querier, p core.PlannedPurchase, keepID bool) (int64, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO planned_purchases (`+purchaseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableID(p.ID, keepID), p.Date.String(), p.Name, p.Cost, string(p.Amortization), p.Notes, string(p.Status))
	if err != nil {
		return 0, fmt.Errorf("insert planned purchase: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListPurchases(ctx context.Context) ([]core.PlannedPurchase, error) {
	return listPurchases(ctx, r.db)
}

func (r *SQLiteRepository) AddPurchase(ctx context.Context, p core.PlannedPurchase) (core.PlannedPurchase, error) {
	id, err := insertPurchase(ctx, r.db, p, false)
	if err != nil {
		return core.PlannedPurchase{}, err
	}
	p.ID = id
	slog.InfoContext(ctx, "Planned purchase saved to SQLite", "id", p.ID, "name", p.Name)
	return p, nil
}

func (r *SQLiteRepository) SavePurchase(ctx context.Context, p core.PlannedPurchase) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE planned_purchases SET date = ?, name = ?, cost = ?, amortization = ?, notes = ?, status = ?
		WHERE id = ?`,
		p.Date.String(), p.Name, p.Cost, string(p.Amortization), p.Notes, string(p.Status), p.ID)
	if err != nil {
		return fmt.Errorf("update planned purchase: %w", err)
	}
	return expectOne(res, sheets.TablePurchases, p.ID)
}

func (r *SQLiteRepository) DeletePurchase(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM planned_purchases WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete planned purchase: %w", err)
	}
	return expectOne(res, sheets.TablePurchases, id)
}

// Income

const incomeColumns = `id, job_title, salary, frequency, bonus, salary_tax_rate, total_comp_tax_rate`

func scanIncome(s scanner) (core.IncomeSource, error) {
	var (
		src  core.IncomeSource
		freq string
	)
	if err := s.Scan(&src.ID, &src.JobTitle, &src.Salary, &freq, &src.Bonus, &src.SalaryTaxRate, &src.TotalCompTaxRate); err != nil {
		return core.IncomeSource{}, fmt.Errorf("scan income: %w", err)
	}
	src.Frequency = core.Frequency(freq)
	return src, nil
}

func listIncome(ctx context.Context, q querier) ([]core.IncomeSource, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+incomeColumns+` FROM income ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list income: %w", err)
	}
	defer rows.Close()

	var out []core.IncomeSource
	for rows.Next() {
		src, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func insertIncome(ctx context.Context, q querier, src core.IncomeSource, keepID bool) (int64, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO income (`+incomeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableID(src.ID, keepID), src.JobTitle, src.Salary, string(src.Frequency), src.Bonus, src.SalaryTaxRate, src.TotalCompTaxRate)
	if err != nil {
		return 0, fmt.Errorf("insert income: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListIncome(ctx context.Context) ([]core.IncomeSource, error) {
	return listIncome(ctx, r.db)
}

func (r *SQLiteRepository) AddIncome(ctx context.Context, src core.IncomeSource) (core.IncomeSource, error) {
	id, err := insertIncome(ctx, r.db, src, false)
	if err != nil {
		return core.IncomeSource{}, err
	}
	src.ID = id
	slog.InfoContext(ctx, "Income source saved to SQLite", "id", src.ID, "job_title", src.JobTitle)
	return src, nil
}

func (r *SQLiteRepository) SaveIncome(ctx context.Context, src core.IncomeSource) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE income SET job_title = ?, salary = ?, frequency = ?, bonus = ?, salary_tax_rate = ?, total_comp_tax_rate = ?
		WHERE id = ?`,
		src.JobTitle, src.Salary, string(src.Frequency), src.Bonus, src.SalaryTaxRate, src.TotalCompTaxRate, src.ID)
	if err != nil {
		return fmt.Errorf("update income: %w", err)
	}
	return expectOne(res, sheets.TableIncome, src.ID)
}

func (r *SQLiteRepository) DeleteIncome(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM income WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	return expectOne(res, sheets.TableIncome, id)
}
