// Package testenv provides the shared E2E environment and per-test scopes.
//
// The environment is created once in TestMain and owns the long-lived
// resources: the mailbox provider, the billing provider, the optional fixture
// ledger (ephemeral PostgreSQL via testcontainers or an external database)
// and the optional mailbox stub subprocess. Each test then takes its own
// Scope, which holds a Poller, a Harness and a Penpot session that are never
// shared with another test.
//
// Example usage:
//
//	func TestMain(m *testing.M) {
//	    env, err := testenv.Setup(context.Background(), testenv.DefaultConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    env.Teardown()
//	    os.Exit(code)
//	}
package testenv

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gti/penpot-e2e/e2e/helpers"
	"github.com/gti/penpot-e2e/internal/billing"
	"github.com/gti/penpot-e2e/internal/config"
	"github.com/gti/penpot-e2e/internal/ledger"
	"github.com/gti/penpot-e2e/internal/logging"
	"github.com/gti/penpot-e2e/internal/mailbox"
)

// TestEnv holds the resources shared by every test of a run.
type TestEnv struct {
	// Config is the harness configuration read from the environment.
	Config *config.Config

	// RunID tags every fixture this run records.
	RunID string

	// Mail reads the suite's mailbox.
	Mail mailbox.Provider

	// Billing is nil when no Stripe test key is configured.
	Billing billing.Provider

	// Ledger is nil unless a ledger database is configured or started.
	Ledger *ledger.Ledger

	// Postgres is the ephemeral ledger container, when one was started.
	Postgres *PostgresContainer

	// Stub is the mailbox stub subprocess, when one was started.
	Stub *StubService

	// StubClient feeds the stub; nil when mail is read from Gmail.
	StubClient *StubClient

	Log *zap.Logger

	opts EnvConfig

	// mu protects browser lazy initialization.
	mu      sync.Mutex
	browser *helpers.Browser

	// cleanupFuncs holds cleanup functions in reverse order.
	cleanupFuncs []func()
}

// EnvConfig holds configuration for the test environment itself, as opposed
// to the harness settings read by config.Load.
type EnvConfig struct {
	// StartStub builds and launches cmd/mailstub and reads mail from it.
	StartStub bool
	Stub      ServiceConfig

	// StartLedger starts an ephemeral PostgreSQL for the fixture ledger
	// when no LEDGER_DATABASE_URL is configured.
	StartLedger bool
	Postgres    PostgresConfig

	Browser helpers.BrowserOptions
}

// DefaultConfig returns the environment configuration selected by E2E_* variables.
func DefaultConfig() EnvConfig {
	return EnvConfig{
		StartStub:   envBool("E2E_START_STUB"),
		Stub:        DefaultServiceConfig(),
		StartLedger: envBool("E2E_START_LEDGER"),
		Postgres:    DefaultPostgresConfig(),
		Browser: helpers.BrowserOptions{
			Show:         envBool("E2E_SHOW_BROWSER"),
			UpdateGolden: envBool("E2E_UPDATE_GOLDEN"),
		},
	}
}

// Setup initializes the shared environment.
//
// This function:
//  1. Starts the mailbox stub, if asked, and points the mailbox settings at it
//  2. Loads and validates the harness configuration
//  3. Creates the mailbox and billing providers
//  4. Opens the fixture ledger (external database or testcontainers)
//
// Always call Teardown when done.
func Setup(ctx context.Context, opts EnvConfig) (*TestEnv, error) {
	log, err := logging.New(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	env := &TestEnv{
		RunID: uuid.NewString(),
		Log:   log,
		opts:  opts,
	}

	if opts.StartStub {
		svc, cleanup, err := StartStub(ctx, opts.Stub, log)
		if err != nil {
			return nil, fmt.Errorf("failed to start mailbox stub: %w", err)
		}
		env.addCleanup(cleanup)
		env.Stub = svc

		// config.Load reads these; the stub wins over any Gmail settings.
		_ = os.Setenv("MAILBOX_API_URL", svc.URL)
		_ = os.Setenv("MAILBOX_API_TOKEN", svc.Token)
	}

	cfg, err := config.Load()
	if err != nil {
		env.Teardown()
		return nil, err
	}
	env.Config = cfg

	mail, err := mailbox.NewGmailProvider(ctx, mailbox.GmailConfig{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		RefreshToken: cfg.GmailRefreshToken,
		Endpoint:     cfg.MailboxAPIURL,
		StaticToken:  cfg.MailboxAPIToken,
	})
	if err != nil {
		env.Teardown()
		return nil, err
	}
	env.Mail = mail
	if cfg.UsesMailStub() {
		env.StubClient = NewStubClient(cfg.MailboxAPIURL, cfg.MailboxAPIToken)
	}

	if cfg.HasBilling() {
		provider, err := billing.NewStripeProvider(billing.StripeConfig{
			SecretKey:         cfg.StripeSecretKey,
			APIURL:            cfg.StripeAPIURL,
			MaxNetworkRetries: 2,
			Log:               log,
		})
		if err != nil {
			env.Teardown()
			return nil, err
		}
		env.Billing = provider
	}

	switch {
	case cfg.LedgerDatabaseURL != "":
		l, err := ledger.Open(ctx, cfg.LedgerDatabaseURL, env.RunID, log)
		if err != nil {
			env.Teardown()
			return nil, err
		}
		env.addCleanup(l.Close)
		env.Ledger = l
	case opts.StartLedger:
		pg, cleanup, err := StartPostgres(ctx, opts.Postgres, env.RunID, log)
		if err != nil {
			env.Teardown()
			return nil, fmt.Errorf("failed to start ledger database: %w", err)
		}
		env.addCleanup(cleanup)
		env.Postgres = pg
		env.Ledger = pg.Ledger
	}

	log.Info("e2e environment ready",
		zap.String("run", env.RunID),
		zap.String("penpot", cfg.BaseURL),
		zap.Bool("mailstub", cfg.UsesMailStub()),
		zap.Bool("billing", env.Billing != nil),
		zap.Bool("ledger", env.Ledger != nil))

	return env, nil
}

// Teardown releases all shared resources in reverse order of creation.
func (env *TestEnv) Teardown() {
	env.mu.Lock()
	if env.browser != nil {
		_ = env.browser.Close()
		env.browser = nil
	}
	env.mu.Unlock()

	for i := len(env.cleanupFuncs) - 1; i >= 0; i-- {
		env.cleanupFuncs[i]()
	}
	env.cleanupFuncs = nil

	_ = env.Log.Sync()
}

// Browser returns the shared browser, launching it on first use.
//
// The browser is closed during Teardown. Tests using it must not run in parallel.
func (env *TestEnv) Browser() (*helpers.Browser, error) {
	env.mu.Lock()
	defer env.mu.Unlock()

	if env.browser != nil {
		return env.browser, nil
	}

	browser, err := helpers.NewBrowser(env.opts.Browser)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	env.browser = browser
	return browser, nil
}

// addCleanup adds a cleanup function to be called during Teardown.
func (env *TestEnv) addCleanup(fn func()) {
	env.cleanupFuncs = append(env.cleanupFuncs, fn)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
