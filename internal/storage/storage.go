package storage

import (
	"context"
	"fmt"

	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/pkg/config"
	"go.uber.org/zap"
)

// TransactionStore is the authoritative record store. Implementations never
// cache records and never deduplicate inserts.
type TransactionStore interface {
	Insert(ctx context.Context, tx models.Transaction) (int64, error)
	GetByID(ctx context.Context, id int64) (models.Transaction, error)
	GetByCategory(ctx context.Context, category string, rng models.DateRange) ([]models.Transaction, error)
	GetByDateRange(ctx context.Context, start, end string) ([]models.Transaction, error)
	GroupByCategory(ctx context.Context, filter models.SummaryFilter) ([]models.CategorySummary, error)
	Delete(ctx context.Context, id int64) error
	Update(ctx context.Context, id int64, patch models.TransactionPatch) (models.Transaction, error)
	GetByDescription(ctx context.Context, substring string) ([]models.Transaction, error)
	GetAll(ctx context.Context) ([]models.Transaction, error)
}

// ThreadStorage keeps conversation turns keyed by thread id. It is append only.
type ThreadStorage interface {
	LoadThread(ctx context.Context, threadID string) ([]models.Message, error)
	AppendThread(ctx context.Context, threadID string, msgs ...models.Message) error
	DeleteThread(ctx context.Context, threadID string) error
}

type Storage interface {
	TransactionStore
	ThreadStorage
	Close() error
}

// Open builds the storage selected by cfg.Driver
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (Storage, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Info("Using in-memory storage")
		return NewMemoryStorage(), nil
	case config.DriverPostgres:
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Host), zap.String("dbname", cfg.DBName))
		return NewPostgresStorage(cfg.DSN(), logger)
	case config.DriverSQLite:
		logger.Info("Using SQLite storage", zap.String("path", cfg.Path))
		return NewSQLiteStorage(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", models.ErrConfig, cfg.Driver)
	}
}
