// Package store persists pipeline run history.
package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vcard-normalizer/internal/config"
	"github.com/sells-group/vcard-normalizer/internal/model"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: run not found")

// defaultListLimit caps ListRuns when the filter sets no limit.
const defaultListLimit = 100

// Store defines the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context, mode model.RunMode, sources []string) (*model.Run, error)
	// CompleteRun records the result. An aborted result marks the run aborted.
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver. The "none" driver returns a
// Nop store that records nothing.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "runs.db"
		}
		return NewSQLite(dsn)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.DatabaseURL)
	case DriverNone:
		return Nop{}, nil
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}

func completedStatus(result *model.RunResult) model.RunStatus {
	if result != nil && result.Aborted {
		return model.RunStatusAborted
	}
	return model.RunStatusComplete
}

func causeText(cause error) string {
	if cause == nil {
		return "unknown error"
	}
	return cause.Error()
}

// Nop is a Store that keeps no history.
type Nop struct{}

// CreateRun returns an unsaved run.
func (Nop) CreateRun(_ context.Context, mode model.RunMode, sources []string) (*model.Run, error) {
	return newRun(mode, sources), nil
}

// CompleteRun does nothing.
func (Nop) CompleteRun(context.Context, string, *model.RunResult) error { return nil }

// FailRun does nothing.
func (Nop) FailRun(context.Context, string, error) error { return nil }

// GetRun always reports ErrNotFound.
func (Nop) GetRun(_ context.Context, runID string) (*model.Run, error) {
	return nil, eris.Wrapf(ErrNotFound, "store: get run %s", runID)
}

// ListRuns returns nothing.
func (Nop) ListRuns(context.Context, model.RunFilter) ([]model.Run, error) { return nil, nil }

// Migrate does nothing.
func (Nop) Migrate(context.Context) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
