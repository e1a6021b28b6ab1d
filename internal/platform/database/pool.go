package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fedcred/internal/platform/config"
	"fedcred/migrations"
)

// Pool wraps a *sql.DB with health checking capabilities.
type Pool struct {
	db  *sql.DB
	cfg config.Database
}

// New creates a new database connection pool.
// Returns nil if the URL is empty (the in-memory store is used instead).
func New(cfg config.Database) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{db: db, cfg: cfg}, nil
}

// DB returns the underlying *sql.DB for query operations.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Migrate applies the embedded schema.
func (p *Pool) Migrate(ctx context.Context) error {
	return migrations.Apply(ctx, p.db)
}

// Health checks if the database is reachable.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("database not configured")
	}
	return p.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// RegisterMetrics exposes sql.DBStats (open, idle, wait counts) under the given registry.
func (p *Pool) RegisterMetrics(reg prometheus.Registerer) error {
	if p == nil || p.db == nil || reg == nil {
		return nil
	}
	if err := reg.Register(collectors.NewDBStatsCollector(p.db, "fedcred")); err != nil {
		return fmt.Errorf("register db stats collector: %w", err)
	}
	return nil
}
