package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budgetdash/internal/sheets"

	_ "modernc.org/sqlite"
)

const pragmas = "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// expectOne turns a zero-row UPDATE or DELETE into sheets.ErrNotFound.
func expectOne(res sql.Result, table string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, sheets.ErrNotFound)
	}
	return nil
}

// Snapshot reads all four tables inside one transaction.
func (r *SQLiteRepository) Snapshot(ctx context.Context) (sheets.Snapshot, error) {
	snap := sheets.Snapshot{TakenAt: time.Now().UTC()}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if snap.Expenses, err = listExpenses(ctx, tx); err != nil {
			return err
		}
		if snap.Subscriptions, err = listSubscriptions(ctx, tx); err != nil {
			return err
		}
		if snap.Purchases, err = listPurchases(ctx, tx); err != nil {
			return err
		}
		snap.Income, err = listIncome(ctx, tx)
		return err
	})
	return snap, err
}

// Restore replaces the content of every table with the snapshot, keeping
// the snapshot's row IDs.
func (r *SQLiteRepository) Restore(ctx context.Context, snap sheets.Snapshot) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{sheets.TableExpenses, sheets.TableSubscriptions, sheets.TablePurchases, sheets.TableIncome} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		for _, e := range snap.Expenses {
			if _, err := insertExpense(ctx, tx, e, true); err != nil {
				return err
			}
		}
		for _, s := range snap.Subscriptions {
			if _, err := insertSubscription(ctx, tx, s, true); err != nil {
				return err
			}
		}
		for _, p := range snap.Purchases {
			if _, err := insertPurchase(ctx, tx, p, true); err != nil {
				return err
			}
		}
		for _, i := range snap.Income {
			if _, err := insertIncome(ctx, tx, i, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Budget restored from snapshot",
		"expenses", len(snap.Expenses),
		"subscriptions", len(snap.Subscriptions),
		"purchases", len(snap.Purchases),
		"income", len(snap.Income))
	return nil
}

func (r *SQLiteRepository) SavePlan(ctx context.Context, name string, snap sheets.Snapshot) error {
	payload, err := sheets.MarshalSnapshotJSON(snap)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO budget_plans (name, saved_at, payload) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET saved_at = excluded.saved_at, payload = excluded.payload`,
		name, snap.TakenAt.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("save plan %q: %w", name, err)
	}
	slog.InfoContext(ctx, "Budget plan saved", "plan", name)
	return nil
}

func (r *SQLiteRepository) LoadPlan(ctx context.Context, name string) (sheets.Snapshot, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM budget_plans WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return sheets.Snapshot{}, fmt.Errorf("%q: %w", name, sheets.ErrPlanNotFound)
	}
	if err != nil {
		return sheets.Snapshot{}, fmt.Errorf("load plan %q: %w", name, err)
	}
	return sheets.UnmarshalSnapshotJSON([]byte(payload))
}

func (r *SQLiteRepository) DeletePlan(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budget_plans WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete plan %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", name, sheets.ErrPlanNotFound)
	}
	return nil
}

func (r *SQLiteRepository) ListPlans(ctx context.Context) ([]sheets.PlanInfo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, saved_at FROM budget_plans ORDER BY saved_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []sheets.PlanInfo
	for rows.Next() {
		var (
			info    sheets.PlanInfo
			savedAt string
		)
		if err := rows.Scan(&info.Name, &savedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		info.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}
