package testenv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/gti/penpot-e2e/e2e/helpers"
	"github.com/gti/penpot-e2e/internal/billing"
	"github.com/gti/penpot-e2e/internal/ledger"
	"github.com/gti/penpot-e2e/internal/mailbox"
	"github.com/gti/penpot-e2e/internal/penpot"
)

// cleanupTimeout bounds the provider calls made while a scope is cleaned up.
const cleanupTimeout = 30 * time.Second

// Scope is one test's view of the environment. Nothing in it is shared with
// another test, so scoped tests may run in parallel.
//
//	func TestInvite(t *testing.T) {
//	    t.Parallel()
//	    s := env.NewScope(t)
//	    addr := s.Alias()
//	    ...
//	}
type Scope struct {
	// Poller waits for mail in the suite's mailbox.
	Poller *mailbox.Poller

	// Harness drives billing test clocks. Nil without a Stripe test key;
	// use RequireBilling to skip such tests.
	Harness *billing.Harness

	// Penpot is a fresh API session against the instance under test.
	Penpot *penpot.Client

	// Assert reports domain assertion failures on the test.
	Assert *helpers.Assert

	Log *zap.Logger

	t        testing.TB
	env      *TestEnv
	recorder *scopedRecorder
}

// NewScope creates a Scope for t. Clocks the scope's Harness creates are
// deleted when t finishes, which also removes the customers bound to them.
func (env *TestEnv) NewScope(t testing.TB) *Scope {
	t.Helper()

	log := zaptest.NewLogger(t).With(zap.String("test", t.Name()))

	client, err := penpot.NewClient(env.Config.BaseURL, log)
	require.NoError(t, err)

	s := &Scope{
		Poller: mailbox.NewPoller(env.Mail, mailbox.WithLogger(log)),
		Penpot: client,
		Assert: helpers.NewAssert(t),
		Log:    log,
		t:      t,
		env:    env,
	}

	if env.Billing != nil {
		var fixtures fixtureLog
		if env.Ledger != nil {
			fixtures = env.Ledger
		}
		s.recorder = newScopedRecorder(fixtures, log)
		s.Harness = billing.NewHarness(env.Billing,
			billing.WithHarnessLogger(log),
			billing.WithCorrelationKey(env.Config.StripeCorrelationKey),
			billing.WithRecorder(s.recorder))

		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			defer cancel()
			s.recorder.cleanup(ctx, s.Harness.DeleteClock)
		})
	}

	return s
}

// Alias returns a fresh subaddress of the suite's mailbox for this test.
func (s *Scope) Alias() string {
	return mailbox.NewAlias(s.env.Config.MailboxUser, s.env.Config.MailboxDomain)
}

// RequireBilling skips the test when no billing provider is configured.
func (s *Scope) RequireBilling() {
	s.t.Helper()
	if s.Harness == nil {
		s.t.Skip("STRIPE_SECRET_KEY not set")
	}
}

// RequireLogin skips the test when no Penpot login is configured and
// otherwise logs the scope's session in, returning the profile id.
func (s *Scope) RequireLogin(ctx context.Context) string {
	s.t.Helper()
	cfg := s.env.Config
	if cfg.LoginEmail == "" || cfg.LoginPassword == "" {
		s.t.Skip("PENPOT_LOGIN_EMAIL / PENPOT_LOGIN_PASSWORD not set")
	}
	id, err := s.Penpot.ResolveProfileID(ctx, cfg.LoginEmail, cfg.LoginPassword)
	require.NoError(s.t, err)
	return id
}

// Browser returns the shared browser logged into the scope's Penpot session.
func (s *Scope) Browser() *helpers.Browser {
	s.t.Helper()
	b, err := s.env.Browser()
	require.NoError(s.t, err)
	require.NoError(s.t, b.UseSession(s.Penpot.BaseURL(), s.Penpot.Cookies()))
	return b
}

// Stub returns the stub client, skipping the test when mail comes from Gmail.
func (s *Scope) Stub() *StubClient {
	s.t.Helper()
	if s.env.StubClient == nil {
		s.t.Skip("mailbox stub not in use")
	}
	return s.env.StubClient
}

// PollTimeout and PollInterval are the configured mail wait bounds.
func (s *Scope) PollTimeout() time.Duration  { return s.env.Config.PollTimeout }
func (s *Scope) PollInterval() time.Duration { return s.env.Config.PollInterval }

// fixtureLog is the part of the ledger a scope writes to.
type fixtureLog interface {
	Record(ctx context.Context, f ledger.Fixture) (int64, error)
	MarkSwept(ctx context.Context, id int64) error
}

type createdClock struct {
	id       string
	ledgerID int64
}

// scopedRecorder remembers the clocks one test created and forwards every
// fixture to the ledger, so a crashed test's clocks can still be swept.
type scopedRecorder struct {
	fixtures fixtureLog
	log      *zap.Logger

	mu     sync.Mutex
	clocks []createdClock
}

var _ billing.Recorder = (*scopedRecorder)(nil)

func newScopedRecorder(fixtures fixtureLog, log *zap.Logger) *scopedRecorder {
	return &scopedRecorder{fixtures: fixtures, log: log}
}

func (r *scopedRecorder) RecordFixture(ctx context.Context, kind, externalID string) error {
	var id int64
	if r.fixtures != nil {
		var err error
		id, err = r.fixtures.Record(ctx, ledger.Fixture{Kind: kind, ExternalID: externalID})
		if err != nil {
			return err
		}
	}
	if kind == billing.FixtureClock {
		r.mu.Lock()
		r.clocks = append(r.clocks, createdClock{id: externalID, ledgerID: id})
		r.mu.Unlock()
	}
	return nil
}

// cleanup deletes the recorded clocks, newest first. A clock that cannot be
// deleted stays unswept in the ledger for cmd/sweeper.
func (r *scopedRecorder) cleanup(ctx context.Context, del ledger.DeleteFunc) {
	r.mu.Lock()
	clocks := r.clocks
	r.clocks = nil
	r.mu.Unlock()

	for i := len(clocks) - 1; i >= 0; i-- {
		c := clocks[i]
		if err := del(ctx, c.id); err != nil {
			r.log.Warn("failed to delete test clock", zap.String("clock", c.id), zap.Error(err))
			continue
		}
		if r.fixtures == nil {
			continue
		}
		if err := r.fixtures.MarkSwept(ctx, c.ledgerID); err != nil {
			r.log.Warn("failed to mark clock swept", zap.String("clock", c.id), zap.Error(err))
		}
	}
}
