package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geocluster/internal/config"
	"github.com/sells-group/geocluster/internal/model"
)

// ErrNotFound is returned (wrapped) when a run does not exist.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for clustering runs.
type Store interface {
	CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	// UpdateRunResult stores the result and marks the run complete.
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	// FailRun records msg and marks the run failed.
	FailRun(ctx context.Context, runID string, msg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	DeleteRun(ctx context.Context, runID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "geocluster.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unsupported driver: %s", cfg.Driver)
	}
}
