package backend

import (
	"context"
	"fmt"

	"poen/internal/ledger/memory"
	plog "poen/internal/log"
	"poen/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *plog.Logger
}

func NewFactory(logger *plog.Logger) Factory {
	if logger == nil {
		logger = plog.New(plog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(plog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Ledger:  repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context) (*BackendResult, error) {
	f.logger.InfoContext(ctx, "Initialized memory backend; data is lost on exit")

	return &BackendResult{Ledger: memory.New()}, nil
}
