package database

import (
	"context"
	"embed"
	"fmt"
	"time"

	"zoomgo/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// DocumentChangesChannel is the NOTIFY channel the documents trigger
// publishes collection names on.
const DocumentChangesChannel = "document_changes"

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
	ConnectRetries  int
	RetryInterval   time.Duration
}

// NewPostgresPool connects and pings, retrying while the database comes up.
func NewPostgresPool(ctx context.Context, config *PostgresConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}

	attempts := config.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	for i := 1; ; i++ {
		pool, err := connectPostgres(ctx, poolConfig, config.ConnectTimeout)
		if err == nil {
			log.Info("Connected to postgres")
			return pool, nil
		}
		if i >= attempts {
			return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", attempts, err)
		}

		log.WithError(err).Warnf("Postgres not ready (attempt %d/%d)", i, attempts)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(config.RetryInterval):
		}
	}
}

func connectPostgres(ctx context.Context, poolConfig *pgxpool.Config, timeout time.Duration) (*pgxpool.Pool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// MigratePostgres applies the embedded goose migrations.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	goose.SetBaseFS(postgresMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, "migrations/postgres"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get migration version: %w", err)
	}
	log.WithField("version", version).Info("Postgres migrations applied")

	return nil
}
