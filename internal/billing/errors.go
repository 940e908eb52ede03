package billing

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNonPositiveOffset = errors.New("clock offset must be positive")
	ErrClockRewind       = errors.New("test clock cannot move backwards")
	ErrLiveKey           = errors.New("refusing to use a live-mode billing key")
	ErrEmptyQuery        = errors.New("customer query has no criteria")
)

// ProviderRequestError wraps a failed call to the billing provider.
type ProviderRequestError struct {
	Op  string
	Err error
}

func (e *ProviderRequestError) Error() string {
	return fmt.Sprintf("billing provider %s: %v", e.Op, e.Err)
}

func (e *ProviderRequestError) Unwrap() error {
	return e.Err
}

// CustomerNotFoundError means no customer carrying the correlation id appeared before the deadline.
type CustomerNotFoundError struct {
	CorrelationID string
	Elapsed       time.Duration
	Timeout       time.Duration
	Attempts      int
}

func (e *CustomerNotFoundError) Error() string {
	return fmt.Sprintf("no billing customer with correlation id %s after %v (timeout %v, %d attempts)",
		e.CorrelationID, e.Elapsed.Round(time.Millisecond), e.Timeout, e.Attempts)
}

// StatusNotReachedError means no subscription of the customer reached the wanted status in time.
type StatusNotReachedError struct {
	CustomerID string
	Want       SubscriptionStatus
	Last       []SubscriptionStatus
	Elapsed    time.Duration
	Timeout    time.Duration
}

func (e *StatusNotReachedError) Error() string {
	return fmt.Sprintf("customer %s: no subscription reached status %q after %v (timeout %v, last seen %v)",
		e.CustomerID, e.Want, e.Elapsed.Round(time.Millisecond), e.Timeout, e.Last)
}
