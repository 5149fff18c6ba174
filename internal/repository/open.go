package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"nexus/pkg/config"
	"nexus/pkg/db"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Stores bundles the selected backend. Pool is set only for the postgres
// driver, which is also the only one that can host the outbox.
type Stores struct {
	Driver   string
	Projects ProjectStore
	Users    UserStore
	Pool     *pgxpool.Pool
	close    func()
}

func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects the store selected by storage.driver.
func Open(ctx context.Context, storage config.StorageConfig, dbCfg config.DBConfig, mongoCfg config.MongoConfig, logger *zap.Logger) (*Stores, error) {
	switch storage.Driver {
	case DriverPostgres, "":
		pool, err := db.NewConnection(dbCfg, logger)
		if err != nil {
			return nil, err
		}
		if dbCfg.AutoMigrate {
			if err := db.Migrate(ctx, pool, logger); err != nil {
				pool.Close()
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
		}
		return &Stores{
			Driver:   DriverPostgres,
			Projects: NewPostgresProjectStore(pool, logger),
			Users:    NewPostgresUserStore(pool),
			Pool:     pool,
			close:    pool.Close,
		}, nil

	case DriverMongo:
		client, err := ConnectMongo(ctx, mongoCfg, logger)
		if err != nil {
			return nil, err
		}
		store := NewMongoStore(client.Database(mongoCfg.Database), logger)
		if err := store.EnsureIndexes(ctx); err != nil {
			logger.Warn("Failed to ensure mongo indexes", zap.Error(err))
		}
		return &Stores{
			Driver:   DriverMongo,
			Projects: store,
			Users:    store.Users(),
			close: func() {
				_ = client.Disconnect(context.Background())
			},
		}, nil

	case DriverMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
		mem := NewMemoryStore()
		return &Stores{
			Driver:   DriverMemory,
			Projects: mem,
			Users:    mem.Users(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", storage.Driver)
	}
}
