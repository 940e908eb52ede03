package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/gti/penpot-e2e/internal/logging"
	"github.com/gti/penpot-e2e/internal/poll"
)

const (
	// DefaultClockSkew is how far in the past a new test clock is frozen, so the
	// provider never sees a frozen time ahead of its own wall clock.
	DefaultClockSkew = 5 * time.Second

	DefaultCorrelationKey = "penpotId"

	// TestCardPaymentMethod is the provider's always-succeeding test card.
	TestCardPaymentMethod = "pm_card_visa"

	// Used by FindCustomerByCorrelationID and WaitForSubscriptionStatus when
	// given a zero timeout or interval.
	DefaultSearchTimeout  = time.Minute
	DefaultSearchInterval = 3 * time.Second

	defaultReadyTimeout  = 2 * time.Minute
	defaultReadyInterval = 2 * time.Second
)

// HarnessOption configures a Harness.
type HarnessOption func(*Harness)

// WithHarnessClock sets the clock used for "now" and for polling.
func WithHarnessClock(c clock.Clock) HarnessOption {
	return func(h *Harness) { h.clock = c }
}

func WithHarnessLogger(l *zap.Logger) HarnessOption {
	return func(h *Harness) { h.log = logging.OrNop(l) }
}

// WithCorrelationKey sets the customer metadata key holding the application's own id.
func WithCorrelationKey(key string) HarnessOption {
	return func(h *Harness) { h.correlationKey = key }
}

// WithRecorder registers every created clock and customer with r.
func WithRecorder(r Recorder) HarnessOption {
	return func(h *Harness) { h.recorder = r }
}

// WithClockReadiness bounds the wait for a clock to finish advancing.
func WithClockReadiness(timeout, interval time.Duration) HarnessOption {
	return func(h *Harness) {
		h.readyTimeout = timeout
		h.readyInterval = interval
	}
}

// Harness binds test customers to provider-side test clocks and moves those
// clocks forward so billing transitions (trial end, renewal, dunning) happen
// within a test run.
//
// Clocks only move forward: the harness remembers the last frozen time of
// every clock it touched and rejects targets before it.
type Harness struct {
	provider       Provider
	clock          clock.Clock
	log            *zap.Logger
	correlationKey string
	recorder       Recorder
	skew           time.Duration
	readyTimeout   time.Duration
	readyInterval  time.Duration

	mu     sync.Mutex
	frozen map[string]time.Time
}

// NewHarness creates a Harness driving provider.
func NewHarness(provider Provider, opts ...HarnessOption) *Harness {
	h := &Harness{
		provider:       provider,
		clock:          clock.RealClock{},
		log:            zap.NewNop(),
		correlationKey: DefaultCorrelationKey,
		skew:           DefaultClockSkew,
		readyTimeout:   defaultReadyTimeout,
		readyInterval:  defaultReadyInterval,
		frozen:         make(map[string]time.Time),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// CreateCustomerWithClock creates a test clock frozen just before now and a
// customer attached to it, tagged with correlationID under the correlation key.
//
// If the customer cannot be created the clock is deleted again, so a failed
// call leaves nothing behind.
//
// Example:
//
//	cc, err := h.CreateCustomerWithClock(ctx, "QA Bot", "qa+1@example.com", profileID)
func (h *Harness) CreateCustomerWithClock(ctx context.Context, name, email, correlationID string) (*CustomerClock, error) {
	frozen := h.clock.Now().Add(-h.skew).Truncate(time.Second)

	clk, err := h.provider.CreateClock(ctx, frozen, "e2e "+correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to create test clock: %w", err)
	}

	cust, err := h.provider.CreateCustomer(ctx, NewCustomer{
		Name:     name,
		Email:    email,
		ClockID:  clk.ID,
		Metadata: map[string]string{h.correlationKey: correlationID},
	})
	if err != nil {
		if delErr := h.provider.DeleteClock(ctx, clk.ID); delErr != nil {
			h.log.Warn("failed to delete orphaned test clock",
				zap.String("clock", clk.ID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to create customer for %s: %w", correlationID, err)
	}
	// Recorded only once both exist; the rollback above leaves nothing to clean up.
	h.record(ctx, FixtureClock, clk.ID)
	h.record(ctx, FixtureCustomer, cust.ID)

	h.mu.Lock()
	h.frozen[clk.ID] = clk.FrozenTime
	h.mu.Unlock()

	h.log.Info("created customer with test clock",
		zap.String("customer", cust.ID),
		zap.String("clock", clk.ID),
		zap.Time("frozen", clk.FrozenTime))

	return &CustomerClock{
		CustomerID: cust.ID,
		ClockID:    clk.ID,
		FrozenTime: clk.FrozenTime,
	}, nil
}

// AdvanceClockByDays moves the clock to from + days and waits until the
// provider has processed every billing event up to that time. A zero from
// means now. It returns the new frozen time.
func (h *Harness) AdvanceClockByDays(ctx context.Context, clockID string, days int, from time.Time) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, fmt.Errorf("%w: %d days", ErrNonPositiveOffset, days)
	}
	return h.advanceTo(ctx, clockID, h.base(from).AddDate(0, 0, days))
}

// AdvanceClockByMonths moves the clock to from + months calendar months. Day
// overflow normalizes like time.AddDate: Jan 31 + 1 month is Mar 2 (or Mar 3).
func (h *Harness) AdvanceClockByMonths(ctx context.Context, clockID string, months int, from time.Time) (time.Time, error) {
	if months <= 0 {
		return time.Time{}, fmt.Errorf("%w: %d months", ErrNonPositiveOffset, months)
	}
	return h.advanceTo(ctx, clockID, h.base(from).AddDate(0, months, 0))
}

func (h *Harness) base(from time.Time) time.Time {
	if from.IsZero() {
		return h.clock.Now()
	}
	return from
}

func (h *Harness) advanceTo(ctx context.Context, clockID string, target time.Time) (time.Time, error) {
	current, err := h.frozenTime(ctx, clockID)
	if err != nil {
		return time.Time{}, err
	}
	if target.Before(current) {
		return time.Time{}, fmt.Errorf("%w: clock %s is at %s, target %s",
			ErrClockRewind, clockID, current.Format(time.RFC3339), target.Format(time.RFC3339))
	}

	if _, err := h.provider.AdvanceClock(ctx, clockID, target); err != nil {
		return time.Time{}, fmt.Errorf("failed to advance clock %s: %w", clockID, err)
	}

	clk, err := h.waitReady(ctx, clockID)
	if err != nil {
		return time.Time{}, err
	}

	h.mu.Lock()
	h.frozen[clockID] = clk.FrozenTime
	h.mu.Unlock()

	h.log.Info("advanced test clock",
		zap.String("clock", clockID),
		zap.Time("from", current),
		zap.Time("to", target))

	return target, nil
}

// frozenTime returns the last known frozen time of clockID, asking the
// provider for clocks this harness did not create.
func (h *Harness) frozenTime(ctx context.Context, clockID string) (time.Time, error) {
	h.mu.Lock()
	t, ok := h.frozen[clockID]
	h.mu.Unlock()
	if ok {
		return t, nil
	}

	clk, err := h.provider.GetClock(ctx, clockID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get clock %s: %w", clockID, err)
	}

	h.mu.Lock()
	h.frozen[clockID] = clk.FrozenTime
	h.mu.Unlock()
	return clk.FrozenTime, nil
}

func (h *Harness) waitReady(ctx context.Context, clockID string) (*Clock, error) {
	cfg := poll.Config{
		Timeout:  h.readyTimeout,
		Interval: h.readyInterval,
		Clock:    h.clock,
		Log:      h.log,
		Subject:  "clock " + clockID,
	}

	clk, _, err := poll.Until(ctx, cfg, func(ctx context.Context) (*Clock, bool, error) {
		c, err := h.provider.GetClock(ctx, clockID)
		if err != nil {
			return nil, false, err
		}
		return c, c.Status != ClockAdvancing, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wait for clock %s: %w", clockID, err)
	}
	if clk.Status != ClockReady {
		return nil, fmt.Errorf("clock %s ended in status %q", clockID, clk.Status)
	}
	return clk, nil
}

// searchBounds applies DefaultSearchTimeout and DefaultSearchInterval to zero values.
func searchBounds(timeout, interval time.Duration) (time.Duration, time.Duration) {
	if timeout == 0 {
		timeout = DefaultSearchTimeout
	}
	if interval == 0 {
		interval = DefaultSearchInterval
	}
	return timeout, interval
}

// FindCustomerByCorrelationID polls the provider until a customer tagged with
// correlationID shows up, or returns *CustomerNotFoundError after timeout.
// Customers created by the application under test take a while to become searchable.
// A zero timeout or interval uses DefaultSearchTimeout or DefaultSearchInterval.
func (h *Harness) FindCustomerByCorrelationID(ctx context.Context, correlationID string, timeout, interval time.Duration) (*Customer, error) {
	timeout, interval = searchBounds(timeout, interval)
	cfg := poll.Config{
		Timeout:  timeout,
		Interval: interval,
		Clock:    h.clock,
		Log:      h.log,
		Subject:  "customer " + correlationID,
	}
	q := CustomerQuery{Metadata: map[string]string{h.correlationKey: correlationID}}

	cust, _, err := poll.Until(ctx, cfg, func(ctx context.Context) (*Customer, bool, error) {
		found, err := h.provider.SearchCustomers(ctx, q)
		if err != nil {
			return nil, false, err
		}
		if len(found) == 0 {
			return nil, false, nil
		}
		return found[0], true, nil
	})
	if err != nil {
		var timeoutErr *poll.TimeoutError
		if errors.As(err, &timeoutErr) {
			return nil, &CustomerNotFoundError{
				CorrelationID: correlationID,
				Elapsed:       timeoutErr.Elapsed,
				Timeout:       timeoutErr.Timeout,
				Attempts:      timeoutErr.Attempts,
			}
		}
		return nil, fmt.Errorf("failed to find customer %s: %w", correlationID, err)
	}
	return cust, nil
}

// FindCustomerByEmail returns the customers with email, without waiting.
func (h *Harness) FindCustomerByEmail(ctx context.Context, email string) ([]*Customer, error) {
	found, err := h.provider.SearchCustomers(ctx, CustomerQuery{Email: email})
	if err != nil {
		return nil, fmt.Errorf("failed to search customers by email: %w", err)
	}
	return found, nil
}

// WaitForSubscriptionStatus polls the customer's subscriptions until one has
// status want. It returns that subscription, or *StatusNotReachedError.
// Zero bounds default like FindCustomerByCorrelationID.
func (h *Harness) WaitForSubscriptionStatus(ctx context.Context, customerID string, want SubscriptionStatus, timeout, interval time.Duration) (*Subscription, error) {
	timeout, interval = searchBounds(timeout, interval)
	cfg := poll.Config{
		Timeout:  timeout,
		Interval: interval,
		Clock:    h.clock,
		Log:      h.log,
		Subject:  "subscriptions of " + customerID,
	}

	var last []SubscriptionStatus
	sub, _, err := poll.Until(ctx, cfg, func(ctx context.Context) (*Subscription, bool, error) {
		subs, err := h.provider.ListSubscriptions(ctx, customerID)
		if err != nil {
			return nil, false, err
		}
		last = last[:0]
		for _, s := range subs {
			last = append(last, s.Status)
			if s.Status == want {
				return s, true, nil
			}
		}
		return nil, false, nil
	})
	if err != nil {
		var timeoutErr *poll.TimeoutError
		if errors.As(err, &timeoutErr) {
			return nil, &StatusNotReachedError{
				CustomerID: customerID,
				Want:       want,
				Last:       append([]SubscriptionStatus(nil), last...),
				Elapsed:    timeoutErr.Elapsed,
				Timeout:    timeoutErr.Timeout,
			}
		}
		return nil, fmt.Errorf("failed to wait for subscription status: %w", err)
	}
	return sub, nil
}

// StartTrial subscribes the customer to priceID with a trial of trialDays,
// paying with the provider's test card once the trial ends.
func (h *Harness) StartTrial(ctx context.Context, customerID, priceID string, trialDays int) (*Subscription, error) {
	sub, err := h.provider.CreateSubscription(ctx, NewSubscription{
		CustomerID:    customerID,
		PriceID:       priceID,
		TrialDays:     trialDays,
		PaymentMethod: TestCardPaymentMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start trial for %s: %w", customerID, err)
	}
	h.log.Info("started trial",
		zap.String("customer", customerID),
		zap.String("subscription", sub.ID),
		zap.Time("trial_end", sub.TrialEnd))
	return sub, nil
}

// EndTrialAt moves the trial end of a subscription, typically to just after
// the clock's frozen time so the next advance triggers the first invoice.
func (h *Harness) EndTrialAt(ctx context.Context, subscriptionID string, end time.Time) (*Subscription, error) {
	sub, err := h.provider.UpdateTrialEnd(ctx, subscriptionID, end)
	if err != nil {
		return nil, fmt.Errorf("failed to end trial of %s: %w", subscriptionID, err)
	}
	return sub, nil
}

// DeleteClock removes a clock and everything attached to it.
func (h *Harness) DeleteClock(ctx context.Context, clockID string) error {
	if err := h.provider.DeleteClock(ctx, clockID); err != nil {
		return fmt.Errorf("failed to delete clock %s: %w", clockID, err)
	}
	h.mu.Lock()
	delete(h.frozen, clockID)
	h.mu.Unlock()
	return nil
}

func (h *Harness) record(ctx context.Context, kind, id string) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.RecordFixture(ctx, kind, id); err != nil {
		h.log.Warn("failed to record fixture",
			zap.String("kind", kind), zap.String("id", id), zap.Error(err))
	}
}
