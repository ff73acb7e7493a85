package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-tableside/internal/config"
	"ms-tableside/internal/logger"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// Connect opens PostgreSQL through lib/pq and waits for it to answer pings.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	sqldb, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := PingWithRetry(ctx, sqldb, cfg.ConnectRetries, cfg.RetryDelay, log); err != nil {
		sqldb.Close()
		return nil, err
	}

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func PingWithRetry(ctx context.Context, db *sql.DB, retries int, delay time.Duration, log *logger.Logger) error {
	if retries < 1 {
		retries = 1
	}

	var err error
	for i := 0; i < retries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to database (attempt %d/%d)", i+1, retries))
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		log.Error("DATABASE", fmt.Sprintf("Ping failed: %v", err))

		if i < retries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("database unreachable after %d attempts: %w", retries, err)
}
