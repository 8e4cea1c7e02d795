package csvfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"budgetdash/internal/sheets"
)

var tableFiles = map[string]string{
	ExpensesFile:      sheets.TableExpenses,
	SubscriptionsFile: sheets.TableSubscriptions,
	PurchasesFile:     sheets.TablePurchases,
	IncomeFile:        sheets.TableIncome,
}

// Watch reloads a table whenever its file is replaced or edited outside the
// process, then calls onChange with the table name. It blocks until ctx is
// done.
func (s *Store) Watch(ctx context.Context, onChange func(table string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	slog.InfoContext(ctx, "Watching data directory for external edits", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			table, tracked := tableFiles[name]
			if !tracked || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if err := s.reload(name); err != nil {
				slog.WarnContext(ctx, "Reload after file change failed", "file", name, "error", err)
				continue
			}
			slog.DebugContext(ctx, "Table reloaded from disk", "table", table, "op", ev.Op.String())
			if onChange != nil {
				onChange(table)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "File watcher error", "error", err)
		}
	}
}
