package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetdash/internal/core"
	"budgetdash/internal/sheets"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "budget.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestExpenseCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	e := core.NewExpense("Housing")
	e.Name = "Rent"
	e.Amount = decimal.RequireFromString("1500.25")
	e.SuperCategory = "Essentials"
	e.TaxDeductible = true

	saved, err := repo.AddExpense(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.ID)

	second, err := repo.AddExpense(ctx, core.NewExpense("Food"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ID)

	saved.Status = core.StatusInactive
	saved.Notes = "moved out"
	require.NoError(t, repo.SaveExpense(ctx, saved))

	rows, err := repo.ListExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	got := rows[0]
	assert.Equal(t, "Rent", got.Name)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("1500.25")))
	assert.True(t, got.TaxDeductible)
	assert.Equal(t, core.StatusInactive, got.Status)
	assert.Equal(t, "moved out", got.Notes)
	assert.Equal(t, e.Date.String(), got.Date.String())
	assert.Equal(t, core.Monthly, got.Frequency)

	require.NoError(t, repo.DeleteExpense(ctx, 1))
	rows, err = repo.ListExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].ID)

	assert.True(t, errors.Is(repo.DeleteExpense(ctx, 1), sheets.ErrNotFound))
	assert.True(t, errors.Is(repo.SaveExpense(ctx, core.Expense{ID: 42, Category: "x", Name: "y"}), sheets.ErrNotFound))
}

func TestOtherTables(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	sub, err := repo.AddSubscription(ctx, core.NewSubscription())
	require.NoError(t, err)
	sub.Amount = decimal.RequireFromString("9.99")
	require.NoError(t, repo.SaveSubscription(ctx, sub))

	p, err := repo.AddPurchase(ctx, core.NewPlannedPurchase())
	require.NoError(t, err)
	p.Amortization = core.Quarterly
	require.NoError(t, repo.SavePurchase(ctx, p))

	src := core.NewIncomeSource()
	src.Salary = decimal.NewFromInt(100000)
	src.SalaryTaxRate = decimal.RequireFromString("0.25")
	src, err = repo.AddIncome(ctx, src)
	require.NoError(t, err)

	subs, err := repo.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "9.99", subs[0].Amount.String())

	purchases, err := repo.ListPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, core.Quarterly, purchases[0].Amortization)

	income, err := repo.ListIncome(ctx)
	require.NoError(t, err)
	require.Len(t, income, 1)
	assert.True(t, income[0].SalaryTaxRate.Equal(decimal.RequireFromString("0.25")))

	require.NoError(t, repo.DeleteSubscription(ctx, sub.ID))
	require.NoError(t, repo.DeletePurchase(ctx, p.ID))
	require.NoError(t, repo.DeleteIncome(ctx, src.ID))
	assert.ErrorIs(t, repo.DeleteIncome(ctx, src.ID), sheets.ErrNotFound)
}

func TestSnapshotRestoreAndPlans(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	e := core.NewExpense("Housing")
	e.Amount = decimal.NewFromInt(1200)
	_, err := repo.AddExpense(ctx, e)
	require.NoError(t, err)
	_, err = repo.AddIncome(ctx, core.NewIncomeSource())
	require.NoError(t, err)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.SavePlan(ctx, "baseline", snap))

	require.NoError(t, repo.DeleteExpense(ctx, 1))
	_, err = repo.AddExpense(ctx, core.NewExpense("Travel"))
	require.NoError(t, err)

	plan, err := repo.LoadPlan(ctx, "baseline")
	require.NoError(t, err)
	require.NoError(t, repo.Restore(ctx, plan))

	rows, err := repo.ListExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Housing", rows[0].Category)
	assert.Equal(t, int64(1), rows[0].ID)

	later := snap
	later.TakenAt = snap.TakenAt.Add(time.Hour)
	require.NoError(t, repo.SavePlan(ctx, "stretch", later))

	infos, err := repo.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "stretch", infos[0].Name)

	require.NoError(t, repo.DeletePlan(ctx, "stretch"))
	assert.ErrorIs(t, repo.DeletePlan(ctx, "stretch"), sheets.ErrPlanNotFound)
	_, err = repo.LoadPlan(ctx, "missing")
	assert.ErrorIs(t, err, sheets.ErrPlanNotFound)
}

func TestMigrationVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.db")

	version, _, err := MigrationVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, RunMigrations(path))
	version, dirty, err := MigrationVersion(path)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}
