// Package ledger records the provider-side fixtures a test run creates, so
// fixtures whose owning test crashed before cleanup can be swept later.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/gti/penpot-e2e/internal/billing"
	"github.com/gti/penpot-e2e/internal/logging"
)

// Fixture is one recorded provider object.
type Fixture struct {
	ID         int64
	RunID      string
	Kind       string
	ExternalID string
	CreatedAt  time.Time
	SweptAt    *time.Time
}

// Ledger is a Postgres-backed fixture log scoped to one run id.
type Ledger struct {
	pool  *pgxpool.Pool
	runID string
	clock clock.Clock
	log   *zap.Logger
}

var _ billing.Recorder = (*Ledger)(nil)

// New wraps an existing pool. The caller owns the pool.
func New(pool *pgxpool.Pool, runID string, log *zap.Logger) *Ledger {
	return &Ledger{
		pool:  pool,
		runID: runID,
		clock: clock.RealClock{},
		log:   logging.OrNop(log),
	}
}

// Open connects to databaseURL and applies migrations. Close the ledger when done.
func Open(ctx context.Context, databaseURL, runID string, log *zap.Logger) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	l := New(pool, runID, log)
	if err := l.RunMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() {
	l.pool.Close()
}

// RunID returns the run id stamped on fixtures recorded through RecordFixture.
func (l *Ledger) RunID() string {
	return l.runID
}

// Record stores f and returns its id. Recording the same kind and external id
// twice keeps one row and moves it to the newer run.
func (l *Ledger) Record(ctx context.Context, f Fixture) (int64, error) {
	if f.RunID == "" {
		f.RunID = l.runID
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = l.clock.Now()
	}

	var id int64
	err := l.pool.QueryRow(ctx,
		`INSERT INTO fixtures (run_id, kind, external_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (kind, external_id) DO UPDATE SET
		   run_id = EXCLUDED.run_id
		 RETURNING id`,
		f.RunID, f.Kind, f.ExternalID, f.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record %s %s: %w", f.Kind, f.ExternalID, err)
	}
	return id, nil
}

// RecordFixture implements billing.Recorder.
func (l *Ledger) RecordFixture(ctx context.Context, kind, externalID string) error {
	_, err := l.Record(ctx, Fixture{Kind: kind, ExternalID: externalID})
	return err
}

// ListUnswept returns fixtures of kind created before olderThan that were not swept yet, oldest first.
func (l *Ledger) ListUnswept(ctx context.Context, kind string, olderThan time.Time) ([]Fixture, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, run_id, kind, external_id, created_at, swept_at
		 FROM fixtures
		 WHERE kind = $1 AND created_at < $2 AND swept_at IS NULL
		 ORDER BY created_at, id`,
		kind, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list unswept fixtures: %w", err)
	}

	fixtures, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Fixture, error) {
		var f Fixture
		err := row.Scan(&f.ID, &f.RunID, &f.Kind, &f.ExternalID, &f.CreatedAt, &f.SweptAt)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan fixtures: %w", err)
	}
	return fixtures, nil
}

// ListRun returns every fixture recorded under runID, oldest first.
func (l *Ledger) ListRun(ctx context.Context, runID string) ([]Fixture, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, run_id, kind, external_id, created_at, swept_at
		 FROM fixtures WHERE run_id = $1 ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fixtures of run %s: %w", runID, err)
	}

	fixtures, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Fixture])
	if err != nil {
		return nil, fmt.Errorf("failed to scan fixtures: %w", err)
	}
	return fixtures, nil
}

// MarkSwept stamps the fixture as removed from the provider.
func (l *Ledger) MarkSwept(ctx context.Context, id int64) error {
	tag, err := l.pool.Exec(ctx,
		`UPDATE fixtures SET swept_at = $2 WHERE id = $1 AND swept_at IS NULL`,
		id, l.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to mark fixture %d swept: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fixture %d not found or already swept", id)
	}
	return nil
}

// Truncate removes every recorded fixture. Only test environments call it.
func (l *Ledger) Truncate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `TRUNCATE TABLE fixtures RESTART IDENTITY`)
	return err
}
