package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gti/penpot-e2e/internal/logging"
)

// Store is the part of a Ledger the sweeper needs.
type Store interface {
	ListUnswept(ctx context.Context, kind string, olderThan time.Time) ([]Fixture, error)
	MarkSwept(ctx context.Context, id int64) error
}

// DeleteFunc removes one provider object.
type DeleteFunc func(ctx context.Context, externalID string) error

type SweepResult struct {
	Swept  int
	Failed int
}

// Sweep deletes every unswept fixture of kind created before olderThan and
// marks it swept. A failed delete is logged and left for the next sweep.
func Sweep(ctx context.Context, store Store, kind string, olderThan time.Time, del DeleteFunc, log *zap.Logger) (SweepResult, error) {
	log = logging.OrNop(log)

	fixtures, err := store.ListUnswept(ctx, kind, olderThan)
	if err != nil {
		return SweepResult{}, err
	}

	var res SweepResult
	for _, f := range fixtures {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := del(ctx, f.ExternalID); err != nil {
			res.Failed++
			log.Warn("failed to delete fixture",
				zap.String("kind", f.Kind),
				zap.String("id", f.ExternalID),
				zap.String("run", f.RunID),
				zap.Error(err))
			continue
		}
		if err := store.MarkSwept(ctx, f.ID); err != nil {
			return res, fmt.Errorf("deleted %s but failed to mark it: %w", f.ExternalID, err)
		}
		res.Swept++
	}

	log.Info("sweep finished",
		zap.String("kind", kind),
		zap.Int("swept", res.Swept),
		zap.Int("failed", res.Failed))
	return res, nil
}
