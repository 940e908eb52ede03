package mailbox

import (
	"fmt"
	"time"
)

// MessageNotFoundError means the poll deadline passed with no matching message.
type MessageNotFoundError struct {
	Mailbox  string
	Elapsed  time.Duration
	Timeout  time.Duration
	Attempts int

	// LastErr is the last transient provider failure seen while polling, if any.
	LastErr error
}

func (e *MessageNotFoundError) Error() string {
	msg := fmt.Sprintf("no matching message for %s after %v (timeout %v, %d attempts)",
		e.Mailbox, e.Elapsed.Round(time.Millisecond), e.Timeout, e.Attempts)
	if e.LastErr != nil {
		msg += fmt.Sprintf("; last provider error: %v", e.LastErr)
	}
	return msg
}

// LinkNotFoundError means a message was found but did not carry the expected number of URLs.
type LinkNotFoundError struct {
	MessageID string
	Want      int
	Found     int
}

func (e *LinkNotFoundError) Error() string {
	return fmt.Sprintf("message %s: expected %d link(s), found %d", e.MessageID, e.Want, e.Found)
}

// ProviderRequestError wraps a failed call to the mailbox provider.
type ProviderRequestError struct {
	Op  string
	Err error
}

func (e *ProviderRequestError) Error() string {
	return fmt.Sprintf("mailbox provider %s: %v", e.Op, e.Err)
}

func (e *ProviderRequestError) Unwrap() error {
	return e.Err
}
