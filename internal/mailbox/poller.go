package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/gti/penpot-e2e/internal/logging"
	"github.com/gti/penpot-e2e/internal/poll"
)

// Defaults used when WaitForMessage is given a zero timeout or interval.
const (
	DefaultTimeout  = 40 * time.Second
	DefaultInterval = 3 * time.Second
)

// Option configures a Poller.
type Option func(*Poller)

// WithLabels replaces the searched labels (default INBOX and SPAM).
func WithLabels(labels ...string) Option {
	return func(p *Poller) { p.labels = labels }
}

// WithClock sets the clock used for deadlines and sleeping.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithLogger sets the logger receiving transient provider failures.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.log = logging.OrNop(l) }
}

// Poller blocks until a matching message arrives in a mailbox.
//
// A Poller is meant to be created per test. It only ever reads from the provider.
type Poller struct {
	provider Provider
	labels   []string
	clock    clock.Clock
	log      *zap.Logger

	mu    sync.Mutex
	cache map[string]*Message
}

// NewPoller creates a Poller reading from provider.
func NewPoller(provider Provider, opts ...Option) *Poller {
	p := &Poller{
		provider: provider,
		labels:   []string{LabelInbox, LabelSpam},
		clock:    clock.RealClock{},
		log:      zap.NewNop(),
		cache:    make(map[string]*Message),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// WaitForMessage queries every label for mail sent to mailbox, at interval,
// until match accepts the current result set or timeout elapses.
//
// A failed provider query counts as "no match yet". When the deadline passes
// the result is a *MessageNotFoundError, never the last provider error.
func (p *Poller) WaitForMessage(ctx context.Context, mailbox string, match Matcher, timeout, interval time.Duration) (*Message, error) {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if interval == 0 {
		interval = DefaultInterval
	}

	cfg := poll.Config{
		Timeout:  timeout,
		Interval: interval,
		Clock:    p.clock,
		Log:      p.log,
		Subject:  mailbox,
	}

	msg, attempt, err := poll.Until(ctx, cfg, func(ctx context.Context) (*Message, bool, error) {
		msgs, err := p.snapshot(ctx, mailbox)
		if err != nil {
			return nil, false, err
		}
		m, ok := match(msgs)
		return m, ok, nil
	})
	if err != nil {
		var timeoutErr *poll.TimeoutError
		if errors.As(err, &timeoutErr) {
			return nil, &MessageNotFoundError{
				Mailbox:  mailbox,
				Elapsed:  timeoutErr.Elapsed,
				Timeout:  timeoutErr.Timeout,
				Attempts: timeoutErr.Attempts,
				LastErr:  timeoutErr.LastErr,
			}
		}
		return nil, fmt.Errorf("failed to wait for message to %s: %w", mailbox, err)
	}

	p.log.Debug("message found",
		zap.String("mailbox", mailbox),
		zap.String("id", msg.ID),
		zap.Int("attempts", attempt.Attempts),
		zap.Duration("elapsed", p.clock.Since(attempt.Start)))

	return msg, nil
}

// Messages returns the current messages for mailbox without waiting, oldest first.
func (p *Poller) Messages(ctx context.Context, mailbox string) ([]*Message, error) {
	return p.snapshot(ctx, mailbox)
}

// snapshot lists all labels and fetches any message not seen before. The
// searched labels on each returned message are the ones that listed it in
// this snapshot; cached bodies are reused, cached labels are not.
func (p *Poller) snapshot(ctx context.Context, mailbox string) ([]*Message, error) {
	listed := make(map[string][]string)
	var order []string

	for _, label := range p.labels {
		ids, err := p.provider.List(ctx, label, mailbox)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := listed[id]; !ok {
				order = append(order, id)
			}
			listed[id] = append(listed[id], label)
		}
	}

	msgs := make([]*Message, 0, len(order))
	for _, id := range order {
		m, err := p.fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, p.relabel(m, listed[id]))
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].ReceivedAt.Equal(msgs[j].ReceivedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt)
	})

	return msgs, nil
}

// relabel returns a copy of m whose searched labels are exactly current.
// Labels the poller does not search, such as UNREAD, are kept from the fetch.
func (p *Poller) relabel(m *Message, current []string) *Message {
	searched := make(map[string]bool, len(p.labels))
	for _, l := range p.labels {
		searched[l] = true
	}

	out := *m
	out.Labels = make([]string, 0, len(m.Labels)+len(current))
	for _, l := range m.Labels {
		if !searched[l] {
			out.Labels = append(out.Labels, l)
		}
	}
	out.Labels = append(out.Labels, current...)
	return &out
}

func (p *Poller) fetch(ctx context.Context, id string) (*Message, error) {
	p.mu.Lock()
	m, ok := p.cache[id]
	p.mu.Unlock()
	if ok {
		return m, nil
	}

	m, err := p.provider.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[id] = m
	p.mu.Unlock()
	return m, nil
}
