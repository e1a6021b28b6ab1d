//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"fedcred/migrations"
)

// credentialTables are truncated between tests. Order does not matter with CASCADE.
var credentialTables = []string{"verification_events", "credentials", "outbox"}

// PostgresContainer is a migrated Postgres shared by every integration suite in the process.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts Postgres and applies the embedded schema.
// The shared Manager owns it; Ryuk removes the container when the test binary exits.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("fedcred_test"),
		postgres.WithUsername("fedcred"),
		postgres.WithPassword("fedcred_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	fail := func(format string, args ...any) {
		_ = container.Terminate(ctx)
		t.Fatalf(format, args...)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fail("postgres connection string: %v", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fail("open postgres: %v", err)
	}
	// concurrent issuance and verification tests hold one connection per goroutine
	db.SetMaxOpenConns(32)

	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		fail("apply migrations: %v", err)
	}
	return &PostgresContainer{Container: container, DSN: dsn, DB: db}
}

// TruncateAll empties every credential engine table in one statement.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	stmt := "TRUNCATE TABLE " + strings.Join(credentialTables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("truncate credential tables: %w", err)
	}
	return nil
}
