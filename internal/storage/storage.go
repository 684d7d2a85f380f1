package storage

import (
	"context"
	"fmt"

	"github.com/IgorGrieder/short-url/internal/config"
	"github.com/IgorGrieder/short-url/internal/infrastructure/db"
	"github.com/IgorGrieder/short-url/internal/infrastructure/logger"
	"github.com/IgorGrieder/short-url/internal/processing/accounts"
	"github.com/IgorGrieder/short-url/internal/processing/links"
	mongoStorage "github.com/IgorGrieder/short-url/internal/storage/mongo"
	postgresStorage "github.com/IgorGrieder/short-url/internal/storage/postgres"
	"go.uber.org/zap"
)

// Stores holds the repositories of the selected backend.
type Stores struct {
	Links    links.LinkRepository
	Accounts accounts.AccountRepository
	Ping     func(ctx context.Context) error
	Close    func()
}

// Open connects to the backend named by cfg.Storage.Backend. Postgres
// schemas are migrated before the pool is opened.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.Storage.Backend {
	case config.StorageMongo:
		return openMongo(ctx, cfg)
	case config.StoragePostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openMongo(ctx context.Context, cfg *config.Config) (*Stores, error) {
	conn, err := db.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		return nil, err
	}

	linkRepo, err := mongoStorage.NewLinksRepository(ctx, conn)
	if err != nil {
		_ = conn.Disconnect()
		return nil, fmt.Errorf("init mongo links repository: %w", err)
	}

	logger.Info("Storage backend selected", zap.String("backend", config.StorageMongo))
	return &Stores{
		Links:    linkRepo,
		Accounts: mongoStorage.NewAccountsRepository(conn),
		Ping:     conn.Ping,
		Close:    func() { _ = conn.Disconnect() },
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*Stores, error) {
	dsn := cfg.Postgres.DSN()
	if err := postgresStorage.Migrate(dsn); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	conn, err := db.ConnectPostgres(ctx, dsn, cfg.Postgres.MaxConns)
	if err != nil {
		return nil, err
	}

	linkRepo, err := postgresStorage.NewLinksRepository(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init postgres links repository: %w", err)
	}
	accountRepo, err := postgresStorage.NewAccountsRepository(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init postgres accounts repository: %w", err)
	}

	logger.Info("Storage backend selected", zap.String("backend", config.StoragePostgres))
	return &Stores{
		Links:    linkRepo,
		Accounts: accountRepo,
		Ping:     conn.Ping,
		Close:    conn.Close,
	}, nil
}
