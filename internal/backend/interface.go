package backend

import (
	"context"

	"budgetdash/internal/sheets"
)

// Backend is the full persistence surface a data backend provides.
type Backend interface {
	sheets.ExpenseStore
	sheets.SubscriptionStore
	sheets.PurchaseStore
	sheets.IncomeStore
	sheets.Snapshotter
	sheets.PlanStore
}

// Pinger is implemented by backends with an external dependency to probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// csv and memory: directory holding the CSV files
	DataDirectory string
	// csv: reload tables edited outside the process
	WatchFiles bool
	// csv: called after a watched table was reloaded
	OnExternalChange func(table string)

	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	CSVBackend    BackendType = "csv"
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case CSVBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
