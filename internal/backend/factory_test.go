package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"budgetdash/internal/config"
	"budgetdash/internal/core"
	"budgetdash/internal/sheets"
	"budgetdash/internal/sheets/csvfile"
	"budgetdash/internal/sheets/memory"
	"budgetdash/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	app := config.Default()
	app.DataBackend = "sqlite"
	app.SQLiteDBPath = "/tmp/x.db"
	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, "/tmp/x.db", cfg.SQLiteDBPath)
	assert.Equal(t, app.DataDir, cfg.DataDirectory)

	app.DataBackend = "sheets"
	_, err = FromAppConfig(app)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"csv", Config{Type: CSVBackend, DataDirectory: "data"}, false},
		{"csv without dir", Config{Type: CSVBackend}, true},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "a.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"memory", Config{Type: MemoryBackend}, false},
		{"unknown", Config{Type: "postgres"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	assert.Equal(t, []string{"csv", "sqlite", "memory"}, GetBackendTypeStrings())
	assert.Equal(t, config.Backends, GetBackendTypeStrings())
}

func TestCreateEachBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	factory := NewFactory(nil)

	tests := []struct {
		name string
		cfg  Config
		want any
	}{
		{"csv", Config{Type: CSVBackend, DataDirectory: filepath.Join(dir, "csv")}, &csvfile.Store{}},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "db", "budget.db")}, &storage.SQLiteRepository{}},
		{"memory", Config{Type: MemoryBackend}, &memory.Store{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := factory.CreateBackend(ctx, tt.cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, res.Backend)

			e, err := res.Backend.AddExpense(ctx, core.NewExpense("Housing"))
			require.NoError(t, err)
			assert.Equal(t, int64(1), e.ID)

			if res.Cleanup != nil {
				require.NoError(t, res.Cleanup())
			}
		})
	}
}

func TestCSVBackendWatchesExternalEdits(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 8)

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:             CSVBackend,
		DataDirectory:    dir,
		WatchFiles:       true,
		OnExternalChange: func(table string) { notify(changed, table) },
	})
	require.NoError(t, err)
	require.NotNil(t, res.Cleanup)
	defer func() { require.NoError(t, res.Cleanup()) }()

	// The watcher starts asynchronously; keep replacing the file until it
	// reports a reload.
	body := "\ufeffID,Subscription/ Recurring Expense,Amount,Frequency\n1,Music,9.99,Monthly\n"
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

wait:
	for {
		select {
		case table := <-changed:
			if table == sheets.TableSubscriptions {
				break wait
			}
		case <-tick.C:
			tmp := filepath.Join(dir, "edit.tmp")
			require.NoError(t, os.WriteFile(tmp, []byte(body), 0o644))
			require.NoError(t, os.Rename(tmp, filepath.Join(dir, csvfile.SubscriptionsFile)))
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	subs, err := res.Backend.ListSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Music", subs[0].Name)
}

// notify never blocks the watcher once the test stops listening.
func notify(ch chan<- string, table string) {
	select {
	case ch <- table:
	default:
	}
}
