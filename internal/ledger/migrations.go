package ledger

import (
	"context"
	"fmt"
)

// RunMigrations creates the ledger schema.
func (l *Ledger) RunMigrations(ctx context.Context) error {
	l.log.Info("running ledger migrations")

	schema := `
	CREATE TABLE IF NOT EXISTS fixtures (
		id BIGSERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		external_id TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		swept_at TIMESTAMP WITH TIME ZONE,
		UNIQUE (kind, external_id)
	);

	CREATE INDEX IF NOT EXISTS idx_fixtures_unswept ON fixtures(kind, created_at) WHERE swept_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_fixtures_run ON fixtures(run_id);
	`

	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
