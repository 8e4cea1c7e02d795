package sheets

import (
	"context"
	"errors"
	"time"

	"budgetdash/internal/core"
)

var (
	// ErrNotFound is returned when a row ID does not exist in its table.
	ErrNotFound = errors.New("row not found")
	// ErrPlanNotFound is returned for an unknown budget plan name.
	ErrPlanNotFound = errors.New("budget plan not found")
)

// Table names used in errors, change events and exports.
const (
	TableExpenses      = "expenses"
	TableSubscriptions = "subscriptions"
	TablePurchases     = "planned_purchases"
	TableIncome        = "income"
)

// Ports for outbound adapters. Add* assigns the next free ID and returns the
// stored row; Save* replaces the row with the same ID.
type (
	ExpenseStore interface {
		ListExpenses(ctx context.Context) ([]core.Expense, error)
		AddExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		SaveExpense(ctx context.Context, e core.Expense) error
		DeleteExpense(ctx context.Context, id int64) error
	}

	SubscriptionStore interface {
		ListSubscriptions(ctx context.Context) ([]core.Subscription, error)
		AddSubscription(ctx context.Context, s core.Subscription) (core.Subscription, error)
		SaveSubscription(ctx context.Context, s core.Subscription) error
		DeleteSubscription(ctx context.Context, id int64) error
	}

	PurchaseStore interface {
		ListPurchases(ctx context.Context) ([]core.PlannedPurchase, error)
		AddPurchase(ctx context.Context, p core.PlannedPurchase) (core.PlannedPurchase, error)
		SavePurchase(ctx context.Context, p core.PlannedPurchase) error
		DeletePurchase(ctx context.Context, id int64) error
	}

	IncomeStore interface {
		ListIncome(ctx context.Context) ([]core.IncomeSource, error)
		AddIncome(ctx context.Context, i core.IncomeSource) (core.IncomeSource, error)
		SaveIncome(ctx context.Context, i core.IncomeSource) error
		DeleteIncome(ctx context.Context, id int64) error
	}

	// Snapshotter captures and replaces every table at once.
	Snapshotter interface {
		Snapshot(ctx context.Context) (Snapshot, error)
		Restore(ctx context.Context, s Snapshot) error
	}

	// PlanStore keeps named snapshots ("budget plans").
	PlanStore interface {
		SavePlan(ctx context.Context, name string, s Snapshot) error
		LoadPlan(ctx context.Context, name string) (Snapshot, error)
		DeletePlan(ctx context.Context, name string) error
		ListPlans(ctx context.Context) ([]PlanInfo, error)
	}
)

// Snapshot is the full content of the four tables at a point in time.
type Snapshot struct {
	TakenAt       time.Time
	Expenses      []core.Expense
	Subscriptions []core.Subscription
	Purchases     []core.PlannedPurchase
	Income        []core.IncomeSource
}

// PlanInfo describes a stored budget plan.
type PlanInfo struct {
	Name    string
	SavedAt time.Time
}
