package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"budgetdash/internal/amqp"
	"budgetdash/internal/cache"
	"budgetdash/internal/core"
	blog "budgetdash/internal/log"
	"budgetdash/internal/sheets"
)

const summaryKey = "summary"

// Store is everything the service needs from a backend.
type Store interface {
	sheets.ExpenseStore
	sheets.SubscriptionStore
	sheets.PurchaseStore
	sheets.IncomeStore
	sheets.Snapshotter
	sheets.PlanStore
}

// ChangePublisher announces mutations; *amqp.Client satisfies it.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev amqp.ChangeEvent) error
}

// Summary is the fully derived view behind every page.
type Summary struct {
	Budget             core.Budget
	Categories         []core.CategoryGroup
	SuperCategories    []core.Share
	Essentials         []core.Share
	SubscriptionShares []core.Share

	Expenses      []core.Expense
	Subscriptions []core.Subscription
	Purchases     []core.PlannedPurchase
	Income        []core.IncomeSource
}

// ExpenseUpdate carries the editable fields of an expense row. Category and
// super category are kept from the stored row.
type ExpenseUpdate struct {
	ID            int64
	Name          string
	Amount        decimal.Decimal
	Frequency     core.Frequency
	Date          core.Date // zero means today
	TaxDeductible bool
	Notes         string
	Status        core.Status
}

// BudgetService orchestrates table mutations, summaries and plans.
type BudgetService struct {
	store     Store
	publisher ChangePublisher
	summaries cache.Cache[Summary]

	// generation counts invalidations. A summary is only cached when no
	// invalidation happened while its tables were loading.
	cacheMu    sync.Mutex
	generation uint64
}

// NewBudgetService wires a store with an optional publisher and summary
// cache. Either may be nil.
func NewBudgetService(store Store, publisher ChangePublisher, summaries cache.Cache[Summary]) *BudgetService {
	return &BudgetService{
		store:     store,
		publisher: publisher,
		summaries: summaries,
	}
}

// AddExpense appends a blank row to category.
func (s *BudgetService) AddExpense(ctx context.Context, category string) (core.Expense, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return core.Expense{}, ErrInvalidCategoryName
	}
	e, err := s.store.AddExpense(ctx, core.NewExpense(category))
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}
	s.changed(ctx, sheets.TableExpenses, amqp.OpAdd, e.ID)
	return e, nil
}

// CreateCategory starts a category with one blank expense. Creating an
// existing category just adds another row to it.
func (s *BudgetService) CreateCategory(ctx context.Context, name string) (core.Expense, error) {
	return s.AddExpense(ctx, name)
}

// SaveExpense applies u to the stored row with the same ID.
func (s *BudgetService) SaveExpense(ctx context.Context, u ExpenseUpdate) (core.Expense, error) {
	rows, err := s.store.ListExpenses(ctx)
	if err != nil {
		return core.Expense{}, fmt.Errorf("list expenses: %w", err)
	}
	i := indexOf(rows, u.ID, func(e core.Expense) int64 { return e.ID })
	if i < 0 {
		return core.Expense{}, fmt.Errorf("%s %d: %w", sheets.TableExpenses, u.ID, sheets.ErrNotFound)
	}

	e := rows[i]
	e.Name = strings.TrimSpace(u.Name)
	e.Amount = u.Amount
	e.Frequency = u.Frequency
	e.Date = u.Date
	if e.Date.IsZero() {
		e.Date = core.Today()
	}
	e.TaxDeductible = u.TaxDeductible
	e.Notes = u.Notes
	e.Status = u.Status
	if e.Status == "" {
		e.Status = core.StatusActive
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	if err := s.store.SaveExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.changed(ctx, sheets.TableExpenses, amqp.OpSave, e.ID)
	return e, nil
}

func (s *BudgetService) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.changed(ctx, sheets.TableExpenses, amqp.OpDelete, id)
	return nil
}

// Categories lists distinct expense categories in first-seen order.
func (s *BudgetService) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.store.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return core.Categories(rows), nil
}

// FrequencyOptions returns the selectable labels followed by any other
// labels found in the expense and subscription tables.
func (s *BudgetService) FrequencyOptions(ctx context.Context) ([]core.Frequency, error) {
	expenses, err := s.store.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	opts := core.Frequencies()
	seen := make(map[core.Frequency]bool, len(opts))
	for _, f := range opts {
		seen[f] = true
	}
	extra := func(f core.Frequency) {
		f = core.Frequency(strings.TrimSpace(string(f)))
		if f == "" || seen[f] {
			return
		}
		seen[f] = true
		opts = append(opts, f)
	}
	for _, e := range expenses {
		extra(e.Frequency)
	}
	for _, sub := range subs {
		extra(sub.Frequency)
	}
	return opts, nil
}

func (s *BudgetService) AddSubscription(ctx context.Context) (core.Subscription, error) {
	sub, err := s.store.AddSubscription(ctx, core.NewSubscription())
	if err != nil {
		return core.Subscription{}, fmt.Errorf("add subscription: %w", err)
	}
	s.changed(ctx, sheets.TableSubscriptions, amqp.OpAdd, sub.ID)
	return sub, nil
}

func (s *BudgetService) SaveSubscription(ctx context.Context, sub core.Subscription) error {
	sub.Name = strings.TrimSpace(sub.Name)
	if sub.Date.IsZero() {
		sub.Date = core.Today()
	}
	if err := sub.Validate(); err != nil {
		return err
	}
	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	s.changed(ctx, sheets.TableSubscriptions, amqp.OpSave, sub.ID)
	return nil
}

func (s *BudgetService) DeleteSubscription(ctx context.Context, id int64) error {
	if err := s.store.DeleteSubscription(ctx, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	s.changed(ctx, sheets.TableSubscriptions, amqp.OpDelete, id)
	return nil
}

func (s *BudgetService) AddPurchase(ctx context.Context) (core.PlannedPurchase, error) {
	p, err := s.store.AddPurchase(ctx, core.NewPlannedPurchase())
	if err != nil {
		return core.PlannedPurchase{}, fmt.Errorf("add purchase: %w", err)
	}
	s.changed(ctx, sheets.TablePurchases, amqp.OpAdd, p.ID)
	return p, nil
}

func (s *BudgetService) SavePurchase(ctx context.Context, p core.PlannedPurchase) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Date.IsZero() {
		p.Date = core.Today()
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.store.SavePurchase(ctx, p); err != nil {
		return fmt.Errorf("save purchase: %w", err)
	}
	s.changed(ctx, sheets.TablePurchases, amqp.OpSave, p.ID)
	return nil
}

func (s *BudgetService) DeletePurchase(ctx context.Context, id int64) error {
	if err := s.store.DeletePurchase(ctx, id); err != nil {
		return fmt.Errorf("delete purchase: %w", err)
	}
	s.changed(ctx, sheets.TablePurchases, amqp.OpDelete, id)
	return nil
}

func (s *BudgetService) AddIncome(ctx context.Context) (core.IncomeSource, error) {
	in, err := s.store.AddIncome(ctx, core.NewIncomeSource())
	if err != nil {
		return core.IncomeSource{}, fmt.Errorf("add income: %w", err)
	}
	s.changed(ctx, sheets.TableIncome, amqp.OpAdd, in.ID)
	return in, nil
}

func (s *BudgetService) SaveIncome(ctx context.Context, in core.IncomeSource) error {
	in.JobTitle = strings.TrimSpace(in.JobTitle)
	if err := in.Validate(); err != nil {
		return err
	}
	if err := s.store.SaveIncome(ctx, in); err != nil {
		return fmt.Errorf("save income: %w", err)
	}
	s.changed(ctx, sheets.TableIncome, amqp.OpSave, in.ID)
	return nil
}

func (s *BudgetService) DeleteIncome(ctx context.Context, id int64) error {
	if err := s.store.DeleteIncome(ctx, id); err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	s.changed(ctx, sheets.TableIncome, amqp.OpDelete, id)
	return nil
}

// Summary loads every table concurrently and derives the budget. The result
// is cached until the next mutation.
func (s *BudgetService) Summary(ctx context.Context) (Summary, error) {
	if s.summaries != nil {
		if sum, ok := s.summaries.Get(summaryKey); ok {
			return sum, nil
		}
	}

	gen := s.currentGeneration()

	var sum Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sum.Expenses, err = s.store.ListExpenses(gctx)
		return err
	})
	g.Go(func() (err error) {
		sum.Subscriptions, err = s.store.ListSubscriptions(gctx)
		return err
	})
	g.Go(func() (err error) {
		sum.Purchases, err = s.store.ListPurchases(gctx)
		return err
	})
	g.Go(func() (err error) {
		sum.Income, err = s.store.ListIncome(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("load tables: %w", err)
	}

	sum.Budget = core.NewBudget(sum.Income, sum.Expenses, sum.Subscriptions, sum.Purchases)
	sum.Categories = core.GroupByCategory(sum.Expenses)
	sum.SuperCategories = core.BySuperCategory(sum.Budget.Expenses)
	sum.Essentials = core.EssentialsBreakdown(sum.Budget.Expenses)
	sum.SubscriptionShares = core.SubscriptionShares(sum.Budget.Subscriptions)

	s.storeSummary(gen, sum)
	return sum, nil
}

// InvalidateSummary drops the cached summary. Summaries already loading
// when it runs are not cached.
func (s *BudgetService) InvalidateSummary() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.summaries != nil {
		s.summaries.Purge()
	}
}

func (s *BudgetService) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

func (s *BudgetService) storeSummary(gen uint64, sum Summary) {
	if s.summaries == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation == gen {
		s.summaries.Set(summaryKey, sum)
	}
}

// SavePlan stores the current tables under name, replacing any plan with
// the same name.
func (s *BudgetService) SavePlan(ctx context.Context, name string) (string, error) {
	name, err := ValidatePlanName(name)
	if err != nil {
		return "", err
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	if err := s.store.SavePlan(ctx, name, snap); err != nil {
		return "", fmt.Errorf("save plan %q: %w", name, err)
	}
	blog.FromContext(ctx).WithComponent(blog.ComponentBudget).InfoContext(ctx, "Budget plan saved",
		blog.FieldPlan, name)
	return name, nil
}

// ResetPlan replaces every table with the content of a saved plan.
func (s *BudgetService) ResetPlan(ctx context.Context, name string) error {
	name, err := ValidatePlanName(name)
	if err != nil {
		return err
	}
	snap, err := s.store.LoadPlan(ctx, name)
	if err != nil {
		return fmt.Errorf("load plan %q: %w", name, err)
	}
	if err := s.store.Restore(ctx, snap); err != nil {
		return fmt.Errorf("restore plan %q: %w", name, err)
	}
	for _, table := range []string{sheets.TableExpenses, sheets.TableSubscriptions, sheets.TablePurchases, sheets.TableIncome} {
		s.changed(ctx, table, amqp.OpRestore, 0)
	}
	return nil
}

func (s *BudgetService) DeletePlan(ctx context.Context, name string) error {
	name, err := ValidatePlanName(name)
	if err != nil {
		return err
	}
	if err := s.store.DeletePlan(ctx, name); err != nil {
		return fmt.Errorf("delete plan %q: %w", name, err)
	}
	blog.FromContext(ctx).WithComponent(blog.ComponentBudget).InfoContext(ctx, "Budget plan deleted",
		blog.FieldPlan, name)
	return nil
}

func (s *BudgetService) ListPlans(ctx context.Context) ([]sheets.PlanInfo, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// Snapshot exposes the store's full snapshot for exporters and the CLI.
func (s *BudgetService) Snapshot(ctx context.Context) (sheets.Snapshot, error) {
	return s.store.Snapshot(ctx)
}

// changed invalidates the summary cache and announces the mutation. A
// failed publish never fails the request; the data is already stored.
func (s *BudgetService) changed(ctx context.Context, table, op string, rowID int64) {
	s.InvalidateSummary()

	logger := blog.FromContext(ctx)
	blog.NewStructuredLogger(logger).LogChange(ctx, table, op, rowID)

	if s.publisher == nil {
		return
	}
	ev := amqp.NewChangeEvent(table, op, rowID)
	if err := s.publisher.PublishChange(ctx, ev); err != nil {
		logger.WithComponent(blog.ComponentAMQP).ErrorContext(ctx, "Failed to publish change event",
			blog.FieldEventID, ev.ID,
			blog.FieldTable, table,
			blog.FieldRowID, rowID,
			blog.FieldError, err)
	}
}

func indexOf[T any](rows []T, id int64, idOf func(T) int64) int {
	for i := range rows {
		if idOf(rows[i]) == id {
			return i
		}
	}
	return -1
}
