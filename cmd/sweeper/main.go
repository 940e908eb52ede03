// Command sweeper deletes billing test clocks left behind by test runs that
// never reached their cleanup. Deleting a clock also deletes its customers.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gti/penpot-e2e/internal/billing"
	"github.com/gti/penpot-e2e/internal/config"
	"github.com/gti/penpot-e2e/internal/ledger"
	"github.com/gti/penpot-e2e/internal/logging"
)

func main() {
	cfg, err := config.LoadSweeper()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.SweeperConfig, logger *zap.Logger) error {
	provider, err := billing.NewStripeProvider(billing.StripeConfig{
		SecretKey:         cfg.StripeSecretKey,
		APIURL:            cfg.StripeAPIURL,
		MaxNetworkRetries: 2,
		Log:               logger,
	})
	if err != nil {
		return err
	}

	l, err := ledger.Open(ctx, cfg.LedgerDatabaseURL, "sweeper", logger)
	if err != nil {
		return err
	}
	defer l.Close()

	return sweep(ctx, l, provider, time.Now().Add(-cfg.OlderThan), logger)
}

// deleter removes billing fixtures; a missing object counts as deleted.
type deleter interface {
	DeleteClock(ctx context.Context, id string) error
	DeleteCustomer(ctx context.Context, id string) error
}

// sweep deletes clocks first, since that removes their customers, then any
// customer still recorded. Each fixture stands alone: one that fails stays
// unswept for the next run and does not hold back the others.
func sweep(ctx context.Context, store ledger.Store, provider deleter, cutoff time.Time, logger *zap.Logger) error {
	clocks, err := ledger.Sweep(ctx, store, billing.FixtureClock, cutoff, provider.DeleteClock, logger)
	if err != nil {
		return err
	}
	customers, err := ledger.Sweep(ctx, store, billing.FixtureCustomer, cutoff, provider.DeleteCustomer, logger)
	if err != nil {
		return err
	}

	logger.Info("sweep finished",
		zap.Int("clocks", clocks.Swept),
		zap.Int("customers", customers.Swept),
		zap.Int("failed", clocks.Failed+customers.Failed))
	return nil
}
