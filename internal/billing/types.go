package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ClockStatus is the provider's view of a test clock.
type ClockStatus string

const (
	ClockReady     ClockStatus = "ready"
	ClockAdvancing ClockStatus = "advancing"
	ClockFailed    ClockStatus = "internal_failure"
)

// SubscriptionStatus values as reported by the provider. The provider owns the
// subscription state machine; these are only names for comparing against.
type SubscriptionStatus string

const (
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusUnpaid   SubscriptionStatus = "unpaid"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Clock is a provider-side virtual clock bound to one customer.
type Clock struct {
	ID         string
	Name       string
	FrozenTime time.Time
	Status     ClockStatus
}

type Customer struct {
	ID       string
	Name     string
	Email    string
	ClockID  string
	Metadata map[string]string
}

type Subscription struct {
	ID                string
	CustomerID        string
	Status            SubscriptionStatus
	TrialEnd          time.Time
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

// CustomerClock is the pair created by Harness.CreateCustomerWithClock.
type CustomerClock struct {
	CustomerID string
	ClockID    string
	FrozenTime time.Time
}

// NewCustomer holds the fields used to create a customer.
type NewCustomer struct {
	Name     string
	Email    string
	ClockID  string
	Metadata map[string]string
}

// NewSubscription holds the fields used to start a subscription.
type NewSubscription struct {
	CustomerID string
	PriceID    string
	TrialDays  int

	// PaymentMethod is attached to the customer and used as the default,
	// e.g. the provider's test card "pm_card_visa".
	PaymentMethod string
}

// CustomerQuery selects customers by email, name and/or metadata. All given criteria must match.
type CustomerQuery struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// String renders q in the provider's search query language, e.g.
// email:'a@b.c' AND metadata['penpotId']:'42'.
func (q CustomerQuery) String() string {
	var clauses []string
	if q.Email != "" {
		clauses = append(clauses, fmt.Sprintf("email:'%s'", quote(q.Email)))
	}
	if q.Name != "" {
		clauses = append(clauses, fmt.Sprintf("name:'%s'", quote(q.Name)))
	}

	keys := make([]string, 0, len(q.Metadata))
	for k := range q.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		clauses = append(clauses, fmt.Sprintf("metadata['%s']:'%s'", quote(k), quote(q.Metadata[k])))
	}

	return strings.Join(clauses, " AND ")
}

func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// Provider is the subset of the billing provider's API the harness drives.
// Implementations return *ProviderRequestError for failed calls.
//
// DeleteClock and DeleteCustomer succeed when the object is already gone.
type Provider interface {
	CreateClock(ctx context.Context, frozen time.Time, name string) (*Clock, error)
	GetClock(ctx context.Context, id string) (*Clock, error)
	AdvanceClock(ctx context.Context, id string, to time.Time) (*Clock, error)
	DeleteClock(ctx context.Context, id string) error

	CreateCustomer(ctx context.Context, c NewCustomer) (*Customer, error)
	SearchCustomers(ctx context.Context, q CustomerQuery) ([]*Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	CreateSubscription(ctx context.Context, s NewSubscription) (*Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error)
	UpdateTrialEnd(ctx context.Context, subscriptionID string, end time.Time) (*Subscription, error)
}

// Fixture kinds passed to a Recorder.
const (
	FixtureClock    = "test_clock"
	FixtureCustomer = "customer"
)

// Recorder is told about every provider record the harness creates, so it can be swept later.
type Recorder interface {
	RecordFixture(ctx context.Context, kind, externalID string) error
}
