package ctl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetdash/internal/core"
	"budgetdash/internal/sheets"
	"budgetdash/internal/sheets/csvfile"
	"budgetdash/internal/storage"
)

func seedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	snap := sheets.Snapshot{
		Expenses: []core.Expense{{
			ID: 1, Date: core.NewDate(2024, 1, 1), Category: "Housing", SuperCategory: "Essentials",
			Name: "Rent", Amount: decimal.NewFromInt(1000), Frequency: core.Monthly, Status: core.StatusActive,
		}},
		Subscriptions: []core.Subscription{{
			ID: 1, Date: core.NewDate(2024, 1, 1), Name: "Music",
			Amount: decimal.NewFromInt(10), Frequency: core.Monthly, Status: core.StatusActive,
		}},
		Purchases: []core.PlannedPurchase{{
			ID: 1, Date: core.NewDate(2024, 1, 1), Name: "Laptop",
			Cost: decimal.NewFromInt(2400), Amortization: core.Annually, Status: core.StatusActive,
		}},
		Income: []core.IncomeSource{{
			ID: 1, JobTitle: "Engineer", Salary: decimal.NewFromInt(120000), Frequency: core.Annually,
			Bonus: decimal.NewFromInt(10000), SalaryTaxRate: decimal.RequireFromString("0.25"),
			TotalCompTaxRate: decimal.RequireFromString("0.30"),
		}},
	}
	require.NoError(t, csvfile.WriteDir(dir, snap))
	return dir
}

// run executes budgetctl against the csv backend in dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BUDGET_CONFIG_FILE", "")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(dir, "budget.db"))

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--backend", "csv", "--data-dir", dir}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSummary(t *testing.T) {
	dir := seedDir(t)

	out, err := run(t, dir, "summary")
	require.NoError(t, err)
	for _, want := range []string{"INCOME", "Rent", "Music", "Laptop", "$97,000", "$14,520", "$82,480", "Monthly"} {
		assert.Contains(t, out, want)
	}

	out, err = run(t, dir, "summary", "--period", "Weekly")
	require.NoError(t, err)
	assert.Contains(t, out, "Weekly")

	_, err = run(t, dir, "summary", "--period", "Fortnightly")
	assert.ErrorContains(t, err, "unknown period")
}

func TestCategories(t *testing.T) {
	out, err := run(t, seedDir(t), "categories")
	require.NoError(t, err)
	assert.Contains(t, out, "Housing")
	assert.Contains(t, out, "$12,000")
	assert.Contains(t, out, "$1,000")
}

func TestPlanLifecycle(t *testing.T) {
	dir := seedDir(t)

	out, err := run(t, dir, "plan", "save", "Baseline")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved plan Baseline")
	assert.FileExists(t, filepath.Join(dir, "plans", "Baseline.yaml"))

	out, err = run(t, dir, "plan", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Baseline")

	_, err = run(t, dir, "plan", "save", "../escape")
	assert.Error(t, err)

	out, err = run(t, dir, "plan", "reset", "Baseline")
	require.NoError(t, err)
	assert.Contains(t, out, "Restored plan Baseline")

	_, err = run(t, dir, "plan", "delete", "Baseline")
	require.NoError(t, err)
	_, err = run(t, dir, "plan", "delete", "Baseline")
	assert.ErrorIs(t, err, sheets.ErrPlanNotFound)
}

func TestExport(t *testing.T) {
	dir := seedDir(t)
	_, err := run(t, dir, "plan", "save", "Baseline")
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "backup")
	out, err := run(t, dir, "export", "--to", "csv", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 4 rows and 1 plans")

	snap, err := csvfile.ReadDir(target)
	require.NoError(t, err)
	require.Len(t, snap.Expenses, 1)
	assert.Equal(t, "Rent", snap.Expenses[0].Name)
	assert.FileExists(t, filepath.Join(target, "plans", "Baseline.yaml"))

	jsonDir := filepath.Join(t.TempDir(), "json")
	_, err = run(t, dir, "export", "--to", "json", jsonDir)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(jsonDir, "snapshot.json"))
	require.NoError(t, err)
	restored, err := sheets.UnmarshalSnapshotJSON(data)
	require.NoError(t, err)
	assert.True(t, restored.Income[0].Salary.Equal(decimal.NewFromInt(120000)))

	_, err = run(t, dir, "export", "--to", "xml", target)
	assert.ErrorContains(t, err, "unknown export format")
}

func TestImportIntoSQLite(t *testing.T) {
	dir := seedDir(t)
	_, err := run(t, dir, "plan", "save", "Baseline")
	require.NoError(t, err)

	out, err := run(t, dir, "import", "--from", "csv", "--to", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 4 rows and 1 plans from csv into sqlite")

	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "budget.db"))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	income, err := repo.ListIncome(ctx)
	require.NoError(t, err)
	require.Len(t, income, 1)
	assert.Equal(t, "Engineer", income[0].JobTitle)

	plans, err := repo.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "Baseline", plans[0].Name)

	_, err = run(t, dir, "import", "--from", "csv", "--to", "csv")
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "config")
	require.NoError(t, err)
	assert.Contains(t, out, `backend = "csv"`)
	assert.Contains(t, out, dir)
}
