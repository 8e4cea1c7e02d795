package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"budgetdash/internal/core"
	"budgetdash/internal/sheets"
	"budgetdash/internal/sheets/csvfile"
)

// Store is a volatile backend used for demos and tests.
type Store struct {
	mu            sync.Mutex
	expenses      []core.Expense
	subscriptions []core.Subscription
	purchases     []core.PlannedPurchase
	income        []core.IncomeSource
	plans         map[string]sheets.Snapshot
}

func New() *Store {
	return &Store{plans: make(map[string]sheets.Snapshot)}
}

// NewFromSnapshot seeds the store with existing rows.
func NewFromSnapshot(snap sheets.Snapshot) *Store {
	s := New()
	s.expenses = append(s.expenses, snap.Expenses...)
	s.subscriptions = append(s.subscriptions, snap.Subscriptions...)
	s.purchases = append(s.purchases, snap.Purchases...)
	s.income = append(s.income, snap.Income...)
	return s
}

// NewFromFiles seeds the store from the CSV files in base, if any. Nothing
// is ever written back.
func NewFromFiles(base string) *Store {
	snap, err := csvfile.ReadDir(base)
	if err != nil {
		slog.Warn("Memory backend starting empty", "dir", base, "error", err)
		return New()
	}
	return NewFromSnapshot(snap)
}

type row interface {
	core.Expense | core.Subscription | core.PlannedPurchase | core.IncomeSource
}

func find[T row](rows []T, id int64, idOf func(T) int64) int {
	for i := range rows {
		if idOf(rows[i]) == id {
			return i
		}
	}
	return -1
}

func nextID[T row](rows []T, idOf func(T) int64) int64 {
	ids := make([]int64, len(rows))
	for i := range rows {
		ids[i] = idOf(rows[i])
	}
	return core.NextID(ids...)
}

func notFound(table string, id int64) error {
	return fmt.Errorf("%s %d: %w", table, id, sheets.ErrNotFound)
}

func (s *Store) ListExpenses(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.expenses...), nil
}

func (s *Store) AddExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = nextID(s.expenses, func(e core.Expense) int64 { return e.ID })
	s.expenses = append(s.expenses, e)
	return e, nil
}

func (s *Store) SaveExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := find(s.expenses, e.ID, func(e core.Expense) int64 { return e.ID })
	if i < 0 {
		return notFound(sheets.TableExpenses, e.ID)
	}
	s.expenses[i] = e
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := find(s.expenses, id, func(e core.Expense) int64 { return e.ID })
	if i < 0 {
		return notFound(sheets.TableExpenses, id)
	}
	s.expenses = append(s.expenses[:i:i], s.expenses[i+1:]...)
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Subscription(nil), s.subscriptions...), nil
}

func (s *Store) AddSubscription(_ context.Context, sub core.Subscription) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = nextID(s.subscriptions, func(s core.Subscription) int64 { return s.ID })
	s.subscriptions = append(s.subscriptions, sub)
	return sub, nil
}

func (s *Store) SaveSubscription(_ context.Context, sub core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := find(s.subscriptions, sub.ID, func(s core.Subscription) int64 { return s.ID })
	if i < 0 {
		return notFound(sheets.TableSubscriptions, sub.ID)
	}
	s.subscriptions[i] = sub
	return nil
}

func (s *Store) DeleteSubscription(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := find(s.subscriptions, id, func(s core.Subscription) int64 { return s.ID })
	if i < 0 {
		return notFound(sheets.TableSubscriptions, id)
	}
	s.subscriptions = append(s.subscriptions[:i:i], s.subscriptions[i+1:]...)
	return nil
}

func (s *Store) ListPurchases(_ context.Context) ([]core.PlannedPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PlannedPurchase(nil), s.purchases...), nil
}

func (s *Store) AddPurchase(_ context.Context, p core.PlannedPurchase) (core.PlannedPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = nextID(s.purchases, func(p core.PlannedPurchase) int64 { return p.ID })
	s.purchases = append(s.purchases, p)
	return p, nil
}

func (s *Store) SavePurchase(_ context.Context, p core.PlannedPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := find(s.purchases, p.ID, func(p core.PlannedPurchase) int64 { return p.ID })
	if i < 0 {
		return notFound(sheets.TablePurchases, p.ID)
	}
	s.purchases[i] = p
	return nil
}

func (s *Store) DeletePurchase(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := find(s.purchases, id, func(p core.PlannedPurchase) int64 { return p.ID })
	if i < 0 {
		return notFound(sheets.TablePurchases, id)
	}
	s.purchases = append(s.purchases[:i:i], s.purchases[i+1:]...)
	return nil
}

func (s *Store) ListIncome(_ context.Context) ([]core.IncomeSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.IncomeSource(nil), s.income...), nil
}

func (s *Store) AddIncome(_ context.Context, src core.IncomeSource) (core.IncomeSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src.ID = nextID(s.income, func(i core.IncomeSource) int64 { return i.ID })
	s.income = append(s.income, src)
	return src, nil
}

func (s *Store) SaveIncome(_ context.Context, src core.IncomeSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := find(s.income, src.ID, func(i core.IncomeSource) int64 { return i.ID })
	if i < 0 {
		return notFound(sheets.TableIncome, src.ID)
	}
	s.income[i] = src
	return nil
}

func (s *Store) DeleteIncome(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := find(s.income, id, func(i core.IncomeSource) int64 { return i.ID })
	if i < 0 {
		return notFound(sheets.TableIncome, id)
	}
	s.income = append(s.income[:i:i], s.income[i+1:]...)
	return nil
}

func (s *Store) Snapshot(_ context.Context) (sheets.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sheets.Snapshot{
		TakenAt:       time.Now().UTC(),
		Expenses:      append([]core.Expense(nil), s.expenses...),
		Subscriptions: append([]core.Subscription(nil), s.subscriptions...),
		Purchases:     append([]core.PlannedPurchase(nil), s.purchases...),
		Income:        append([]core.IncomeSource(nil), s.income...),
	}, nil
}

func (s *Store) Restore(_ context.Context, snap sheets.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append([]core.Expense(nil), snap.Expenses...)
	s.subscriptions = append([]core.Subscription(nil), snap.Subscriptions...)
	s.purchases = append([]core.PlannedPurchase(nil), snap.Purchases...)
	s.income = append([]core.IncomeSource(nil), snap.Income...)
	return nil
}

func (s *Store) SavePlan(_ context.Context, name string, snap sheets.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[name] = snap
	return nil
}

func (s *Store) LoadPlan(_ context.Context, name string) (sheets.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.plans[name]
	if !ok {
		return sheets.Snapshot{}, fmt.Errorf("%q: %w", name, sheets.ErrPlanNotFound)
	}
	return snap, nil
}

func (s *Store) DeletePlan(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[name]; !ok {
		return fmt.Errorf("%q: %w", name, sheets.ErrPlanNotFound)
	}
	delete(s.plans, name)
	return nil
}

func (s *Store) ListPlans(_ context.Context) ([]sheets.PlanInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sheets.PlanInfo, 0, len(s.plans))
	for name, snap := range s.plans {
		out = append(out, sheets.PlanInfo{Name: name, SavedAt: snap.TakenAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}
