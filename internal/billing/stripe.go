package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"

	"github.com/gti/penpot-e2e/internal/logging"
)

// StripeConfig configures a StripeProvider.
type StripeConfig struct {
	// SecretKey must be a test-mode key (sk_test_ or rk_test_).
	SecretKey string

	// APIURL overrides the API base URL, e.g. a local mock server.
	APIURL string

	HTTPClient        *http.Client
	MaxNetworkRetries int64
	Log               *zap.Logger
}

// StripeProvider drives test clocks, customers and subscriptions through the Stripe API.
type StripeProvider struct {
	api *client.API
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a provider for cfg. Live-mode keys are rejected with ErrLiveKey.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if !strings.HasPrefix(cfg.SecretKey, "sk_test_") && !strings.HasPrefix(cfg.SecretKey, "rk_test_") {
		return nil, ErrLiveKey
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        hc,
		LeveledLogger:     logging.OrNop(cfg.Log).Named("stripe").Sugar(),
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		EnableTelemetry:   stripe.Bool(false),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &StripeProvider{api: api}, nil
}

func (p *StripeProvider) CreateClock(ctx context.Context, frozen time.Time, name string) (*Clock, error) {
	params := &stripe.TestHelpersTestClockParams{
		FrozenTime: stripe.Int64(frozen.Unix()),
		Name:       stripe.String(name),
	}
	params.Context = ctx

	tc, err := p.api.TestHelpersTestClocks.New(params)
	if err != nil {
		return nil, &ProviderRequestError{Op: "create test clock", Err: err}
	}
	return clockFromStripe(tc), nil
}

func (p *StripeProvider) GetClock(ctx context.Context, id string) (*Clock, error) {
	params := &stripe.TestHelpersTestClockParams{}
	params.Context = ctx

	tc, err := p.api.TestHelpersTestClocks.Get(id, params)
	if err != nil {
		return nil, &ProviderRequestError{Op: "get test clock " + id, Err: err}
	}
	return clockFromStripe(tc), nil
}

func (p *StripeProvider) AdvanceClock(ctx context.Context, id string, to time.Time) (*Clock, error) {
	params := &stripe.TestHelpersTestClockAdvanceParams{
		FrozenTime: stripe.Int64(to.Unix()),
	}
	params.Context = ctx

	tc, err := p.api.TestHelpersTestClocks.Advance(id, params)
	if err != nil {
		return nil, &ProviderRequestError{Op: "advance test clock " + id, Err: err}
	}
	return clockFromStripe(tc), nil
}

// DeleteClock deletes the clock and, with it, every object attached to it.
func (p *StripeProvider) DeleteClock(ctx context.Context, id string) error {
	params := &stripe.TestHelpersTestClockParams{}
	params.Context = ctx

	if _, err := p.api.TestHelpersTestClocks.Del(id, params); err != nil && !isMissing(err) {
		return &ProviderRequestError{Op: "delete test clock " + id, Err: err}
	}
	return nil
}

// DeleteCustomer deletes the customer. Deleting its test clock already does that.
func (p *StripeProvider) DeleteCustomer(ctx context.Context, id string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	if _, err := p.api.Customers.Del(id, params); err != nil && !isMissing(err) {
		return &ProviderRequestError{Op: "delete customer " + id, Err: err}
	}
	return nil
}

// isMissing reports whether err says the object does not exist.
func isMissing(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, c NewCustomer) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if c.Name != "" {
		params.Name = stripe.String(c.Name)
	}
	if c.Email != "" {
		params.Email = stripe.String(c.Email)
	}
	if c.ClockID != "" {
		params.TestClock = stripe.String(c.ClockID)
	}
	for k, v := range c.Metadata {
		params.AddMetadata(k, v)
	}

	sc, err := p.api.Customers.New(params)
	if err != nil {
		return nil, &ProviderRequestError{Op: "create customer", Err: err}
	}
	return customerFromStripe(sc), nil
}

// SearchCustomers runs q through the search API. Search results lag writes by
// up to a minute, so callers looking for fresh customers should poll.
func (p *StripeProvider) SearchCustomers(ctx context.Context, q CustomerQuery) ([]*Customer, error) {
	query := q.String()
	if query == "" {
		return nil, ErrEmptyQuery
	}

	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Context: ctx,
			Query:   query,
		},
	}

	var out []*Customer
	it := p.api.Customers.Search(params)
	for it.Next() {
		out = append(out, customerFromStripe(it.Customer()))
	}
	if err := it.Err(); err != nil {
		return nil, &ProviderRequestError{Op: "search customers", Err: err}
	}
	return out, nil
}

// CreateSubscription attaches the payment method, if any, and subscribes the
// customer to one price with an optional trial.
func (p *StripeProvider) CreateSubscription(ctx context.Context, s NewSubscription) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(s.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(s.PriceID)},
		},
	}
	params.Context = ctx
	if s.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(s.TrialDays))
	}

	if s.PaymentMethod != "" {
		attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(s.CustomerID)}
		attach.Context = ctx
		pm, err := p.api.PaymentMethods.Attach(s.PaymentMethod, attach)
		if err != nil {
			return nil, &ProviderRequestError{Op: "attach payment method to " + s.CustomerID, Err: err}
		}
		params.DefaultPaymentMethod = stripe.String(pm.ID)
	}

	sub, err := p.api.Subscriptions.New(params)
	if err != nil {
		return nil, &ProviderRequestError{Op: "create subscription for " + s.CustomerID, Err: err}
	}
	return subscriptionFromStripe(sub), nil
}

// ListSubscriptions returns every subscription of the customer, whatever its status.
func (p *StripeProvider) ListSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var out []*Subscription
	it := p.api.Subscriptions.List(params)
	for it.Next() {
		out = append(out, subscriptionFromStripe(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, &ProviderRequestError{Op: "list subscriptions of " + customerID, Err: err}
	}
	return out, nil
}

func (p *StripeProvider) UpdateTrialEnd(ctx context.Context, subscriptionID string, end time.Time) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		TrialEnd: stripe.Int64(end.Unix()),
	}
	params.Context = ctx

	s, err := p.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, &ProviderRequestError{Op: fmt.Sprintf("update trial end of %s", subscriptionID), Err: err}
	}
	return subscriptionFromStripe(s), nil
}

func clockFromStripe(tc *stripe.TestHelpersTestClock) *Clock {
	return &Clock{
		ID:         tc.ID,
		Name:       tc.Name,
		FrozenTime: unixTime(tc.FrozenTime),
		Status:     ClockStatus(tc.Status),
	}
}

func customerFromStripe(c *stripe.Customer) *Customer {
	out := &Customer{
		ID:       c.ID,
		Name:     c.Name,
		Email:    c.Email,
		Metadata: c.Metadata,
	}
	if c.TestClock != nil {
		out.ClockID = c.TestClock.ID
	}
	return out
}

func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                s.ID,
		Status:            SubscriptionStatus(s.Status),
		TrialEnd:          unixTime(s.TrialEnd),
		CurrentPeriodEnd:  unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	return out
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
