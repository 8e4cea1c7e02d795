package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"budgetdash/internal/amqp"
	"budgetdash/internal/core"
	"budgetdash/internal/sheets"
	"budgetdash/internal/sheets/csvfile"
	"budgetdash/internal/sheets/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingExporter struct {
	mu       sync.Mutex
	calls    int
	failures int // fail this many times before succeeding
	last     sheets.Snapshot
}

func (e *recordingExporter) Name() string { return "recording" }

func (e *recordingExporter) Export(_ context.Context, snap sheets.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failures > 0 {
		e.failures--
		return errors.New("sheet unavailable")
	}
	e.last = snap
	return nil
}

func (e *recordingExporter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func testConfig() MirrorConfig {
	return MirrorConfig{
		Debounce:     20 * time.Millisecond,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
}

func TestDefaultMirrorConfig(t *testing.T) {
	cfg := DefaultMirrorConfig()
	assert.Equal(t, 2*time.Second, cfg.Debounce)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.True(t, cfg.ExportOnStart)

	w := NewMirrorWorker(memory.New(), &recordingExporter{}, MirrorConfig{MaxRetries: -1})
	assert.Equal(t, 2*time.Second, w.config.Debounce)
	assert.Equal(t, 0, w.config.MaxRetries)
}

func TestMirrorDebouncesBursts(t *testing.T) {
	ctx := context.Background()
	exp := &recordingExporter{}
	w := NewMirrorWorker(memory.New(), exp, testConfig())
	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())

	for i := 0; i < 5; i++ {
		require.NoError(t, w.HandleChange(ctx, amqp.NewChangeEvent(sheets.TableExpenses, amqp.OpSave, int64(i))))
	}

	require.Eventually(t, func() bool { return exp.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, exp.count(), "a burst produces one export")

	require.NoError(t, w.Stop(ctx))
	assert.False(t, w.IsRunning())

	stats := w.Stats()
	assert.Equal(t, int64(5), stats.Events)
	assert.Equal(t, int64(1), stats.Exports)
	assert.False(t, stats.LastExport.IsZero())
}

func TestMirrorRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	exp := &recordingExporter{failures: 2}
	cfg := testConfig()
	cfg.ExportOnStart = true
	w := NewMirrorWorker(memory.New(), exp, cfg)
	require.NoError(t, w.Start(ctx))

	require.Eventually(t, func() bool { return w.Stats().Exports == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(ctx))

	assert.Equal(t, 3, exp.count())
	assert.Equal(t, int64(0), w.Stats().Failures)
}

func TestMirrorGivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	exp := &recordingExporter{failures: 10}
	cfg := testConfig()
	cfg.ExportOnStart = true
	w := NewMirrorWorker(memory.New(), exp, cfg)
	require.NoError(t, w.Start(ctx))

	require.Eventually(t, func() bool { return w.Stats().Failures == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(ctx))
	assert.Equal(t, 3, exp.count(), "one attempt plus two retries")
}

func TestMirrorStartTwiceAndStopIdle(t *testing.T) {
	ctx := context.Background()
	w := NewMirrorWorker(memory.New(), &recordingExporter{}, testConfig())

	require.NoError(t, w.Stop(ctx), "stopping an idle worker is a no-op")
	require.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx))
	require.NoError(t, w.Stop(ctx))
}

func TestMirrorStopFlushesPendingExport(t *testing.T) {
	ctx := context.Background()
	exp := &recordingExporter{}
	cfg := testConfig()
	cfg.Debounce = time.Hour
	w := NewMirrorWorker(memory.New(), exp, cfg)
	require.NoError(t, w.Start(ctx))

	w.Notify()
	// Give the loop a moment to arm the debounce timer.
	require.Eventually(t, func() bool { return len(w.notify) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, w.Stop(ctx))
	assert.Equal(t, 1, exp.count())
}

func TestMirrorExitsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewMirrorWorker(memory.New(), &recordingExporter{}, testConfig())
	require.NoError(t, w.Start(ctx))
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, w.Stop(stopCtx))
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, maxRetryBackoff},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(time.Second, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestCSVDirExporter(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "export")
	store := memory.NewFromSnapshot(sheets.Snapshot{
		Expenses: []core.Expense{{
			ID: 1, Category: "Housing", Name: "Rent", Amount: decimal.NewFromInt(1200),
			Frequency: core.Monthly, Status: core.StatusActive,
		}},
	})

	cfg := testConfig()
	cfg.ExportOnStart = true
	w := NewMirrorWorker(store, NewCSVDirExporter(dir), cfg)
	require.NoError(t, w.Start(ctx))
	require.Eventually(t, func() bool { return w.Stats().Exports == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(ctx))

	_, err := os.Stat(filepath.Join(dir, csvfile.ExpensesFile))
	require.NoError(t, err)

	snap, err := csvfile.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, snap.Expenses, 1)
	assert.Equal(t, "Rent", snap.Expenses[0].Name)
}

func TestMirrorExportsWritesFromAnotherStore(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	exportDir := filepath.Join(t.TempDir(), "export")

	server, err := csvfile.Open(dataDir)
	require.NoError(t, err)
	mirrorSide, err := csvfile.Open(dataDir)
	require.NoError(t, err)

	w := NewMirrorWorker(mirrorSide, NewCSVDirExporter(exportDir), testConfig())
	require.NoError(t, w.Start(ctx))

	rent := core.NewExpense("Housing")
	rent.Name = "Rent"
	_, err = server.AddExpense(ctx, rent)
	require.NoError(t, err)
	w.Notify()

	require.Eventually(t, func() bool { return w.Stats().Exports == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(ctx))

	snap, err := csvfile.ReadDir(exportDir)
	require.NoError(t, err)
	require.Len(t, snap.Expenses, 1)
	assert.Equal(t, "Rent", snap.Expenses[0].Name)
}

type failingReloader struct{ *memory.Store }

func (failingReloader) Reload(context.Context) error { return errors.New("disk gone") }

func TestMirrorCountsReloadFailure(t *testing.T) {
	ctx := context.Background()
	exp := &recordingExporter{}
	cfg := testConfig()
	cfg.ExportOnStart = true
	w := NewMirrorWorker(failingReloader{memory.New()}, exp, cfg)
	require.NoError(t, w.Start(ctx))

	require.Eventually(t, func() bool { return w.Stats().Failures == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(ctx))
	assert.Equal(t, 0, exp.count(), "nothing is exported without a fresh snapshot")
}
