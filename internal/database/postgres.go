package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ghabxph/happy-on-slack/internal/config"
)

//go:embed schema.sql
var schema string

type Database struct {
	db     *sql.DB
	config *config.DatabaseConfig
	logger *zap.Logger
}

func NewDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.IdleConnections)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Name),
		zap.Int("max_connections", cfg.MaxConnections))

	return &Database{
		db:     db,
		config: cfg,
		logger: logger,
	}, nil
}

func (d *Database) Health(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *Database) GetDB() *sql.DB {
	return d.db
}

// RunMigrations creates the tables the bot writes to. The schema is
// idempotent so it runs on every start.
func (d *Database) RunMigrations(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	d.logger.Info("Database schema applied")
	return nil
}
