package testenv

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/gti/penpot-e2e/internal/ledger"
)

// PostgresContainer holds the ephemeral PostgreSQL container backing the fixture ledger.
type PostgresContainer struct {
	// Container is the testcontainers container instance.
	Container testcontainers.Container

	// Ledger records this run's provider fixtures. Migrations are already applied.
	Ledger *ledger.Ledger

	// ConnectionString is the PostgreSQL connection URL, e.g. for running cmd/sweeper by hand.
	ConnectionString string
}

// PostgresConfig holds configuration for the PostgreSQL container.
type PostgresConfig struct {
	// Image is the PostgreSQL Docker image (default: postgres:16-alpine).
	Image string

	Database string
	Username string
	Password string
}

// DefaultPostgresConfig returns default PostgreSQL container configuration.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Image:    "postgres:16-alpine",
		Database: "e2e_ledger",
		Username: "test_user",
		Password: "test_pass",
	}
}

// StartPostgres spins up an ephemeral PostgreSQL container and opens a ledger
// for runID on it.
//
// Always call the cleanup function when done:
//
//	pg, cleanup, err := StartPostgres(ctx, DefaultPostgresConfig(), runID, log)
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
func StartPostgres(ctx context.Context, cfg PostgresConfig, runID string, log *zap.Logger) (*PostgresContainer, func(), error) {
	container, err := postgres.Run(ctx,
		cfg.Image,
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	l, err := ledger.Open(ctx, connStr, runID, log)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	pg := &PostgresContainer{
		Container:        container,
		Ledger:           l,
		ConnectionString: connStr,
	}

	cleanup := func() {
		l.Close()
		_ = container.Terminate(context.Background())
	}

	return pg, cleanup, nil
}

// TruncateFixtures empties the fixture ledger while preserving the schema.
func (pg *PostgresContainer) TruncateFixtures(ctx context.Context) error {
	if err := pg.Ledger.Truncate(ctx); err != nil {
		return fmt.Errorf("failed to truncate fixtures: %w", err)
	}
	return nil
}
