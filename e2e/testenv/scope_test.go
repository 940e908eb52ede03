package testenv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gti/penpot-e2e/internal/billing"
	"github.com/gti/penpot-e2e/internal/ledger"
)

type memFixtures struct {
	next     int64
	recorded []ledger.Fixture
	swept    []int64
}

func (m *memFixtures) Record(_ context.Context, f ledger.Fixture) (int64, error) {
	m.next++
	f.ID = m.next
	m.recorded = append(m.recorded, f)
	return f.ID, nil
}

func (m *memFixtures) MarkSwept(_ context.Context, id int64) error {
	m.swept = append(m.swept, id)
	return nil
}

func TestScopedRecorderDeletesClocksNewestFirst(t *testing.T) {
	ctx := context.Background()
	fixtures := &memFixtures{}
	r := newScopedRecorder(fixtures, zaptest.NewLogger(t))

	require.NoError(t, r.RecordFixture(ctx, billing.FixtureClock, "clock_1"))
	require.NoError(t, r.RecordFixture(ctx, billing.FixtureCustomer, "cus_1"))
	require.NoError(t, r.RecordFixture(ctx, billing.FixtureClock, "clock_2"))
	require.Len(t, fixtures.recorded, 3)

	var deleted []string
	r.cleanup(ctx, func(_ context.Context, id string) error {
		deleted = append(deleted, id)
		if id == "clock_1" {
			return errors.New("500 internal error")
		}
		return nil
	})

	assert.Equal(t, []string{"clock_2", "clock_1"}, deleted)
	// clock_2 was the third fixture recorded; clock_1 failed and stays for the sweeper
	assert.Equal(t, []int64{3}, fixtures.swept)

	deleted = nil
	r.cleanup(ctx, func(_ context.Context, id string) error {
		deleted = append(deleted, id)
		return nil
	})
	assert.Empty(t, deleted, "cleanup runs once")
}

func TestScopedRecorderWithoutLedger(t *testing.T) {
	ctx := context.Background()
	r := newScopedRecorder(nil, zaptest.NewLogger(t))

	require.NoError(t, r.RecordFixture(ctx, billing.FixtureClock, "clock_1"))

	var deleted []string
	r.cleanup(ctx, func(_ context.Context, id string) error {
		deleted = append(deleted, id)
		return nil
	})
	assert.Equal(t, []string{"clock_1"}, deleted)
}

// clockProvider keeps only clocks. A delete of an unknown clock fails the way
// the real provider does; everything not overridden panics through the nil
// embedded interface.
type clockProvider struct {
	billing.Provider

	clocks       map[string]bool
	deletes      []string
	failCustomer bool
}

func (p *clockProvider) CreateClock(_ context.Context, frozen time.Time, name string) (*billing.Clock, error) {
	p.clocks["clock_1"] = true
	return &billing.Clock{ID: "clock_1", Name: name, FrozenTime: frozen, Status: billing.ClockReady}, nil
}

func (p *clockProvider) DeleteClock(_ context.Context, id string) error {
	p.deletes = append(p.deletes, id)
	if !p.clocks[id] {
		return &billing.ProviderRequestError{Op: "delete test clock " + id, Err: errors.New("404 resource_missing")}
	}
	delete(p.clocks, id)
	return nil
}

func (p *clockProvider) CreateCustomer(_ context.Context, c billing.NewCustomer) (*billing.Customer, error) {
	if p.failCustomer {
		return nil, &billing.ProviderRequestError{Op: "create customer", Err: errors.New("400 invalid email")}
	}
	return &billing.Customer{ID: "cus_1", Email: c.Email, ClockID: c.ClockID, Metadata: c.Metadata}, nil
}

func TestScopeCleanupAfterRolledBackCustomer(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	fixtures := &memFixtures{}
	r := newScopedRecorder(fixtures, log)
	provider := &clockProvider{clocks: map[string]bool{}, failCustomer: true}
	h := billing.NewHarness(provider, billing.WithRecorder(r), billing.WithHarnessLogger(log))

	_, err := h.CreateCustomerWithClock(ctx, "QA", "bad", "profile-1")
	require.Error(t, err)

	r.cleanup(ctx, h.DeleteClock)

	assert.Equal(t, []string{"clock_1"}, provider.deletes, "the clock is deleted exactly once")
	assert.Empty(t, fixtures.recorded, "nothing is left for the sweeper")
}

func TestScopeCleanupAfterCreatedCustomer(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	fixtures := &memFixtures{}
	r := newScopedRecorder(fixtures, log)
	provider := &clockProvider{clocks: map[string]bool{}}
	h := billing.NewHarness(provider, billing.WithRecorder(r), billing.WithHarnessLogger(log))

	_, err := h.CreateCustomerWithClock(ctx, "QA", "qa@example.com", "profile-1")
	require.NoError(t, err)
	require.Len(t, fixtures.recorded, 2)

	r.cleanup(ctx, h.DeleteClock)

	assert.Equal(t, []string{"clock_1"}, provider.deletes)
	assert.Empty(t, provider.clocks)
	assert.Equal(t, []int64{1}, fixtures.swept)
}
