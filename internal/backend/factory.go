package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"budgetdash/internal/sheets/csvfile"
	"budgetdash/internal/sheets/memory"
	"budgetdash/internal/storage"
)

// Compile-time checks that every store satisfies Backend.
var (
	_ Backend = (*csvfile.Store)(nil)
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*storage.SQLiteRepository)(nil)
	_ Pinger  = (*storage.SQLiteRepository)(nil)
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case CSVBackend:
		return f.createCSVBackend(ctx, config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createCSVBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := csvfile.Open(config.DataDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV data directory: %w", err)
	}

	f.logger.Info("Initialized CSV backend",
		"data_directory", config.DataDirectory,
		"watch_files", config.WatchFiles)

	if !config.WatchFiles {
		return &BackendResult{Backend: store}, nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := store.Watch(watchCtx, config.OnExternalChange); err != nil {
			f.logger.Warn("CSV file watcher stopped", "error", err)
		}
	}()

	return &BackendResult{
		Backend: store,
		Cleanup: func() error {
			cancel()
			wg.Wait()
			return nil
		},
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Backend: repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	var store *memory.Store
	if config.DataDirectory == "" {
		store = memory.New()
	} else {
		store = memory.NewFromFiles(config.DataDirectory)
	}

	f.logger.Info("Initialized memory backend", "data_directory", config.DataDirectory)

	return &BackendResult{Backend: store}, nil
}
