// Package worker mirrors the budget tables to an export target whenever a
// change event arrives.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budgetdash/internal/amqp"
	"budgetdash/internal/sheets"
)

const maxRetryBackoff = 30 * time.Second

// Exporter writes a full snapshot somewhere outside the primary store.
type Exporter interface {
	Name() string
	Export(ctx context.Context, snap sheets.Snapshot) error
}

// Source provides the snapshot to export.
type Source interface {
	Snapshot(ctx context.Context) (sheets.Snapshot, error)
}

// Reloader is implemented by sources that cache tables another process
// writes, such as the csv store. The worker reloads before every snapshot.
type Reloader interface {
	Reload(ctx context.Context) error
}

// MirrorConfig holds configuration for the mirror worker.
type MirrorConfig struct {
	// Debounce is how long to wait after the first change before exporting
	// (default: 2s). Changes arriving in the window share one export.
	Debounce time.Duration

	// MaxRetries is the number of retries after a failed export (default: 3).
	MaxRetries int

	// RetryBackoff is the first retry delay, doubled per attempt (default: 1s).
	RetryBackoff time.Duration

	// ExportOnStart exports once at startup to catch up on missed events.
	ExportOnStart bool
}

func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		Debounce:      2 * time.Second,
		MaxRetries:    3,
		RetryBackoff:  time.Second,
		ExportOnStart: true,
	}
}

// Stats counts export outcomes since start.
type Stats struct {
	Events     int64
	Exports    int64
	Failures   int64
	LastExport time.Time
}

type MirrorWorker struct {
	source   Source
	exporter Exporter
	config   MirrorConfig
	notify   chan struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stats   Stats
}

func NewMirrorWorker(source Source, exporter Exporter, config MirrorConfig) *MirrorWorker {
	def := DefaultMirrorConfig()
	if config.Debounce <= 0 {
		config.Debounce = def.Debounce
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = def.RetryBackoff
	}
	return &MirrorWorker{
		source:   source,
		exporter: exporter,
		config:   config,
		notify:   make(chan struct{}, 1),
	}
}

// HandleChange is the AMQP consumer callback. It only schedules an export,
// so it never fails and the delivery is acked right away.
func (w *MirrorWorker) HandleChange(ctx context.Context, ev amqp.ChangeEvent) error {
	slog.DebugContext(ctx, "Change event received",
		"event_id", ev.ID,
		"table", ev.Table,
		"op", ev.Op,
		"row_id", ev.RowID)
	w.Notify()
	return nil
}

// Notify schedules an export. Multiple calls before the export runs
// coalesce into one.
func (w *MirrorWorker) Notify() {
	w.mu.Lock()
	w.stats.Events++
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Start begins the debounce loop. Returns an error if already running.
func (w *MirrorWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("mirror worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Mirror worker started",
		"exporter", w.exporter.Name(),
		"debounce", w.config.Debounce,
		"max_retries", w.config.MaxRetries)
	return nil
}

// Stop flushes a pending export, then waits for the loop to exit or ctx to
// expire.
func (w *MirrorWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Mirror worker stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Mirror worker stop timed out")
		return ctx.Err()
	}
}

func (w *MirrorWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *MirrorWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *MirrorWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	if w.config.ExportOnStart {
		w.exportWithRetry(ctx)
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			if fire != nil {
				w.exportWithRetry(ctx)
			}
			return
		case <-w.notify:
			if fire == nil {
				timer = time.NewTimer(w.config.Debounce)
				fire = timer.C
			}
		case <-fire:
			fire = nil
			w.exportWithRetry(ctx)
		}
	}
}

// exportWithRetry gives up after MaxRetries retries; the next change event
// triggers a fresh attempt.
func (w *MirrorWorker) exportWithRetry(ctx context.Context) {
	var err error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(w.config.RetryBackoff, attempt)
			slog.WarnContext(ctx, "Retrying export",
				"exporter", w.exporter.Name(),
				"attempt", attempt,
				"delay", delay,
				"error", err)
			if !sleep(ctx, delay) {
				return
			}
		}
		if err = w.exportOnce(ctx); err == nil {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
	}

	w.mu.Lock()
	w.stats.Failures++
	w.mu.Unlock()
	slog.ErrorContext(ctx, "Export failed, giving up until the next change",
		"exporter", w.exporter.Name(),
		"retries", w.config.MaxRetries,
		"error", err)
}

func (w *MirrorWorker) exportOnce(ctx context.Context) error {
	if r, ok := w.source.(Reloader); ok {
		if err := r.Reload(ctx); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
	}
	snap, err := w.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	start := time.Now()
	if err := w.exporter.Export(ctx, snap); err != nil {
		return fmt.Errorf("export to %s: %w", w.exporter.Name(), err)
	}

	w.mu.Lock()
	w.stats.Exports++
	w.stats.LastExport = time.Now()
	w.mu.Unlock()

	slog.InfoContext(ctx, "Snapshot exported",
		"exporter", w.exporter.Name(),
		"expenses", len(snap.Expenses),
		"subscriptions", len(snap.Subscriptions),
		"purchases", len(snap.Purchases),
		"income", len(snap.Income),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
