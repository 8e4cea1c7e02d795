// Package csvfile persists budget tables as UTF-8-with-BOM CSV files, one
// file per table, rewritten in full on every mutation.
package csvfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"budgetdash/internal/core"
	"budgetdash/internal/sheets"
)

const plansDir = "plans"

// Store keeps the four tables in memory and mirrors each mutation to disk
// before it becomes visible to readers.
type Store struct {
	mu  sync.RWMutex
	dir string

	expenses      []core.Expense
	subscriptions []core.Subscription
	purchases     []core.PlannedPurchase
	income        []core.IncomeSource
}

// Open loads every table found in dir. Missing files are empty tables.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &Store{dir: dir}
	if err := s.Reload(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Reload re-reads every table from disk. Another process writing the same
// directory becomes visible only after a reload.
func (s *Store) Reload(_ context.Context) error {
	for _, name := range []string{ExpensesFile, SubscriptionsFile, PurchasesFile, IncomeFile} {
		if err := s.reload(name); err != nil {
			return err
		}
	}
	return nil
}

// reload re-reads one table from disk, replacing the in-memory copy. A
// missing file is an empty table.
func (s *Store) reload(name string) error {
	f, err := os.Open(filepath.Join(s.dir, name))
	missing := errors.Is(err, fs.ErrNotExist)
	if err != nil && !missing {
		return fmt.Errorf("open %s: %w", name, err)
	}
	if f != nil {
		defer f.Close()
	}

	switch name {
	case ExpensesFile:
		rows, err := readOrEmpty(f, ReadExpenses)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		s.mu.Lock()
		s.expenses = rows
		s.mu.Unlock()
	case SubscriptionsFile:
		rows, err := readOrEmpty(f, ReadSubscriptions)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		s.mu.Lock()
		s.subscriptions = rows
		s.mu.Unlock()
	case PurchasesFile:
		rows, err := readOrEmpty(f, ReadPurchases)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		s.mu.Lock()
		s.purchases = rows
		s.mu.Unlock()
	case IncomeFile:
		rows, err := readOrEmpty(f, ReadIncome)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		s.mu.Lock()
		s.income = rows
		s.mu.Unlock()
	default:
		return fmt.Errorf("unknown table file %q", name)
	}
	return nil
}

func readOrEmpty[T any](f *os.File, read func(io.Reader) ([]T, error)) ([]T, error) {
	if f == nil {
		return nil, nil
	}
	return read(f)
}

// writeFile replaces name atomically: a temp file in the same directory is
// written, synced and renamed over the target.
func writeFile(dir, name string, encode func(io.Writer) error) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func notFound(table string, id int64) error {
	return fmt.Errorf("%s %d: %w", table, id, sheets.ErrNotFound)
}

func indexByID[T any](rows []T, id int64, idOf func(T) int64) int {
	for i, r := range rows {
		if idOf(r) == id {
			return i
		}
	}
	return -1
}

func idsOf[T any](rows []T, idOf func(T) int64) []int64 {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = idOf(r)
	}
	return ids
}

func expenseID(e core.Expense) int64           { return e.ID }
func subscriptionID(s core.Subscription) int64 { return s.ID }
func purchaseID(p core.PlannedPurchase) int64  { return p.ID }
func incomeID(i core.IncomeSource) int64       { return i.ID }
func without[T any](rows []T, i int) []T       { return append(append([]T(nil), rows[:i]...), rows[i+1:]...) }
func with[T any](rows []T, row T) []T          { return append(append([]T(nil), rows...), row) }
func replaced[T any](rows []T, i int, row T) []T {
	out := append([]T(nil), rows...)
	out[i] = row
	return out
}

// ListExpenses implements sheets.ExpenseStore.
func (s *Store) ListExpenses(_ context.Context) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Expense(nil), s.expenses...), nil
}

// AddExpense implements sheets.ExpenseStore.
func (s *Store) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = core.NextID(idsOf(s.expenses, expenseID)...)
	next := with(s.expenses, e)
	if err := s.writeExpenses(next); err != nil {
		return core.Expense{}, err
	}
	s.expenses = next
	slog.DebugContext(ctx, "Expense appended to CSV", "id", e.ID, "category", e.Category)
	return e, nil
}

// SaveExpense implements sheets.ExpenseStore.
func (s *Store) SaveExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.expenses, e.ID, expenseID)
	if i < 0 {
		return notFound(sheets.TableExpenses, e.ID)
	}
	next := replaced(s.expenses, i, e)
	if err := s.writeExpenses(next); err != nil {
		return err
	}
	s.expenses = next
	return nil
}

// DeleteExpense implements sheets.ExpenseStore.
func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.expenses, id, expenseID)
	if i < 0 {
		return notFound(sheets.TableExpenses, id)
	}
	next := without(s.expenses, i)
	if err := s.writeExpenses(next); err != nil {
		return err
	}
	s.expenses = next
	return nil
}

func (s *Store) writeExpenses(rows []core.Expense) error {
	return writeFile(s.dir, ExpensesFile, func(w io.Writer) error { return WriteExpenses(w, rows) })
}

// ListSubscriptions implements sheets.SubscriptionStore.
func (s *Store) ListSubscriptions(_ context.Context) ([]core.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Subscription(nil), s.subscriptions...), nil
}

// AddSubscription implements sheets.SubscriptionStore.
func (s *Store) AddSubscription(_ context.Context, sub core.Subscription) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub.ID = core.NextID(idsOf(s.subscriptions, subscriptionID)...)
	next := with(s.subscriptions, sub)
	if err := s.writeSubscriptions(next); err != nil {
		return core.Subscription{}, err
	}
	s.subscriptions = next
	return sub, nil
}

// SaveSubscription implements sheets.SubscriptionStore.
func (s *Store) SaveSubscription(_ context.Context, sub core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.subscriptions, sub.ID, subscriptionID)
	if i < 0 {
		return notFound(sheets.TableSubscriptions, sub.ID)
	}
	next := replaced(s.subscriptions, i, sub)
	if err := s.writeSubscriptions(next); err != nil {
		return err
	}
	s.subscriptions = next
	return nil
}

// DeleteSubscription implements sheets.SubscriptionStore.
func (s *Store) DeleteSubscription(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.subscriptions, id, subscriptionID)
	if i < 0 {
		return notFound(sheets.TableSubscriptions, id)
	}
	next := without(s.subscriptions, i)
	if err := s.writeSubscriptions(next); err != nil {
		return err
	}
	s.subscriptions = next
	return nil
}

func (s *Store) writeSubscriptions(rows []core.Subscription) error {
	return writeFile(s.dir, SubscriptionsFile, func(w io.Writer) error { return WriteSubscriptions(w, rows) })
}

// ListPurchases implements sheets.PurchaseStore.
func (s *Store) ListPurchases(_ context.Context) ([]core.PlannedPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.PlannedPurchase(nil), s.purchases...), nil
}

// AddPurchase implements sheets.PurchaseStore.
func (s *Store) AddPurchase(_ context.Context, p core.PlannedPurchase) (core.PlannedPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = core.NextID(idsOf(s.purchases, purchaseID)...)
	next := with(s.purchases, p)
	if err := s.writePurchases(next); err != nil {
		return core.PlannedPurchase{}, err
	}
	s.purchases = next
	return p, nil
}

// SavePurchase implements sheets.PurchaseStore.
func (s *Store) SavePurchase(_ context.Context, p core.PlannedPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.purchases, p.ID, purchaseID)
	if i < 0 {
		return notFound(sheets.TablePurchases, p.ID)
	}
	next := replaced(s.purchases, i, p)
	if err := s.writePurchases(next); err != nil {
		return err
	}
	s.purchases = next
	return nil
}

// DeletePurchase implements sheets.PurchaseStore.
func (s *Store) DeletePurchase(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.purchases, id, purchaseID)
	if i < 0 {
		return notFound(sheets.TablePurchases, id)
	}
	next := without(s.purchases, i)
	if err := s.writePurchases(next); err != nil {
		return err
	}
	s.purchases = next
	return nil
}

func (s *Store) writePurchases(rows []core.PlannedPurchase) error {
	return writeFile(s.dir, PurchasesFile, func(w io.Writer) error { return WritePurchases(w, rows) })
}

// ListIncome implements sheets.IncomeStore.
func (s *Store) ListIncome(_ context.Context) ([]core.IncomeSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.IncomeSource(nil), s.income...), nil
}

// AddIncome implements sheets.IncomeStore.
func (s *Store) AddIncome(_ context.Context, src core.IncomeSource) (core.IncomeSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src.ID = core.NextID(idsOf(s.income, incomeID)...)
	next := with(s.income, src)
	if err := s.writeIncome(next); err != nil {
		return core.IncomeSource{}, err
	}
	s.income = next
	return src, nil
}

// SaveIncome implements sheets.IncomeStore.
func (s *Store) SaveIncome(_ context.Context, src core.IncomeSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.income, src.ID, incomeID)
	if i < 0 {
		return notFound(sheets.TableIncome, src.ID)
	}
	next := replaced(s.income, i, src)
	if err := s.writeIncome(next); err != nil {
		return err
	}
	s.income = next
	return nil
}

// DeleteIncome implements sheets.IncomeStore.
func (s *Store) DeleteIncome(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.income, id, incomeID)
	if i < 0 {
		return notFound(sheets.TableIncome, id)
	}
	next := without(s.income, i)
	if err := s.writeIncome(next); err != nil {
		return err
	}
	s.income = next
	return nil
}

func (s *Store) writeIncome(rows []core.IncomeSource) error {
	return writeFile(s.dir, IncomeFile, func(w io.Writer) error { return WriteIncome(w, rows) })
}

// Snapshot implements sheets.Snapshotter.
func (s *Store) Snapshot(_ context.Context) (sheets.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sheets.Snapshot{
		TakenAt:       time.Now().UTC(),
		Expenses:      append([]core.Expense(nil), s.expenses...),
		Subscriptions: append([]core.Subscription(nil), s.subscriptions...),
		Purchases:     append([]core.PlannedPurchase(nil), s.purchases...),
		Income:        append([]core.IncomeSource(nil), s.income...),
	}, nil
}

// Restore implements sheets.Snapshotter. Files are rewritten one by one and
// each table is swapped in memory right after its file is replaced, so a
// failure part way leaves memory matching what reached the disk.
func (s *Store) Restore(_ context.Context, snap sheets.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range Encode(snap) {
		if err := writeFile(s.dir, t.File, func(w io.Writer) error { return writeTable(w, t.Header, t.Rows) }); err != nil {
			return fmt.Errorf("restore %s: %w", t.Table, err)
		}
		switch t.File {
		case ExpensesFile:
			s.expenses = append([]core.Expense(nil), snap.Expenses...)
		case SubscriptionsFile:
			s.subscriptions = append([]core.Subscription(nil), snap.Subscriptions...)
		case PurchasesFile:
			s.purchases = append([]core.PlannedPurchase(nil), snap.Purchases...)
		case IncomeFile:
			s.income = append([]core.IncomeSource(nil), snap.Income...)
		}
	}
	return nil
}

// WriteDir writes all four table files of a snapshot into dir.
func WriteDir(dir string, snap sheets.Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	for _, t := range Encode(snap) {
		if err := writeFile(dir, t.File, func(w io.Writer) error { return writeTable(w, t.Header, t.Rows) }); err != nil {
			return err
		}
	}
	return nil
}

// ReadDir loads a snapshot from the CSV files in dir.
func ReadDir(dir string) (sheets.Snapshot, error) {
	s, err := Open(dir)
	if err != nil {
		return sheets.Snapshot{}, err
	}
	return s.Snapshot(context.Background())
}

func (s *Store) planPath(name string) string {
	return filepath.Join(s.dir, plansDir, name+".yaml")
}

// SavePlan implements sheets.PlanStore. Plans are YAML documents under
// <dir>/plans.
func (s *Store) SavePlan(_ context.Context, name string, snap sheets.Snapshot) error {
	data, err := sheets.MarshalSnapshotYAML(snap)
	if err != nil {
		return fmt.Errorf("encode plan %q: %w", name, err)
	}
	dir := filepath.Join(s.dir, plansDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plans directory: %w", err)
	}
	return writeFile(dir, name+".yaml", func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// LoadPlan implements sheets.PlanStore.
func (s *Store) LoadPlan(_ context.Context, name string) (sheets.Snapshot, error) {
	data, err := os.ReadFile(s.planPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return sheets.Snapshot{}, fmt.Errorf("%q: %w", name, sheets.ErrPlanNotFound)
	}
	if err != nil {
		return sheets.Snapshot{}, fmt.Errorf("read plan %q: %w", name, err)
	}
	return sheets.UnmarshalSnapshotYAML(data)
}

// DeletePlan implements sheets.PlanStore.
func (s *Store) DeletePlan(_ context.Context, name string) error {
	err := os.Remove(s.planPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%q: %w", name, sheets.ErrPlanNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete plan %q: %w", name, err)
	}
	return nil
}

// ListPlans implements sheets.PlanStore, newest first.
func (s *Store) ListPlans(ctx context.Context) ([]sheets.PlanInfo, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, plansDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	var out []sheets.PlanInfo
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".yaml")
		if entry.IsDir() || !ok || strings.HasPrefix(name, ".") {
			continue
		}
		snap, err := s.LoadPlan(ctx, name)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable plan", "plan", name, "error", err)
			continue
		}
		out = append(out, sheets.PlanInfo{Name: name, SavedAt: snap.TakenAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}
