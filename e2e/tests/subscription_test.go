//go:build e2e

package tests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gti/penpot-e2e/internal/billing"
)

const (
	trialDays = 14

	subscriptionTimeout  = 2 * time.Minute
	subscriptionInterval = 5 * time.Second
)

// TestTrialBecomesActive starts a trial for a customer on a test clock,
// advances the clock past the trial end and expects the subscription to
// turn active.
func TestTrialBecomesActive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := env.NewScope(t)
	s.RequireBilling()
	if env.Config.StripePriceID == "" {
		t.Skip("STRIPE_PRICE_ID not set")
	}

	correlationID := uuid.NewString()
	cc, err := s.Harness.CreateCustomerWithClock(ctx, "E2E Trial", s.Alias(), correlationID)
	require.NoError(t, err)

	// Search is eventually consistent; the customer shows up after a delay.
	found, err := s.Harness.FindCustomerByCorrelationID(ctx, correlationID, time.Minute, 3*time.Second)
	require.NoError(t, err)
	s.Assert.Equal(cc.CustomerID, found.ID)
	s.Assert.Equal(cc.ClockID, found.ClockID)

	sub, err := s.Harness.StartTrial(ctx, cc.CustomerID, env.Config.StripePriceID, trialDays)
	require.NoError(t, err)
	s.Assert.SubscriptionStatus(billing.StatusTrialing, sub)
	s.Assert.SameSecond(cc.FrozenTime.AddDate(0, 0, trialDays), sub.TrialEnd)

	advanced, err := s.Harness.AdvanceClockByDays(ctx, cc.ClockID, 16, cc.FrozenTime)
	require.NoError(t, err)
	s.Assert.SameSecond(cc.FrozenTime.AddDate(0, 0, 16), advanced)

	sub, err = s.Harness.WaitForSubscriptionStatus(ctx, cc.CustomerID, billing.StatusActive,
		subscriptionTimeout, subscriptionInterval)
	require.NoError(t, err)
	s.Assert.SubscriptionStatus(billing.StatusActive, sub)
}

// TestTrialEndOverride moves a trial end forward, then advances the clock by
// a month and expects the subscription to be active.
func TestTrialEndOverride(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := env.NewScope(t)
	s.RequireBilling()
	if env.Config.StripePriceID == "" {
		t.Skip("STRIPE_PRICE_ID not set")
	}

	cc, err := s.Harness.CreateCustomerWithClock(ctx, "E2E Override", s.Alias(), uuid.NewString())
	require.NoError(t, err)

	sub, err := s.Harness.StartTrial(ctx, cc.CustomerID, env.Config.StripePriceID, trialDays)
	require.NoError(t, err)

	end := cc.FrozenTime.AddDate(0, 0, 3)
	sub, err = s.Harness.EndTrialAt(ctx, sub.ID, end)
	require.NoError(t, err)
	s.Assert.SameSecond(end, sub.TrialEnd)

	_, err = s.Harness.AdvanceClockByMonths(ctx, cc.ClockID, 1, time.Time{})
	require.NoError(t, err)

	_, err = s.Harness.WaitForSubscriptionStatus(ctx, cc.CustomerID, billing.StatusActive,
		subscriptionTimeout, subscriptionInterval)
	require.NoError(t, err)
}
