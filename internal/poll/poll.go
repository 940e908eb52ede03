// Package poll runs a bounded, fixed-interval query loop against an external system.
//
// The loop is the one shape shared by the mailbox poller and the billing harness:
// ask the provider, evaluate the answer, sleep, repeat until found or out of time.
// Transient query errors never end the loop early; only the deadline does.
package poll

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Func performs one attempt. found reports a match; a non-nil err is a
// transient failure that is logged and retried at the next interval.
type Func[T any] func(ctx context.Context) (result T, found bool, err error)

// Config bounds a single Until call.
type Config struct {
	// Timeout is the upper bound on total wait.
	Timeout time.Duration

	// Interval is the delay between attempts.
	Interval time.Duration

	// Clock is used for reading time and sleeping. Defaults to the real clock.
	Clock clock.Clock

	// Log receives one entry per transient failure. Defaults to a no-op logger.
	Log *zap.Logger

	// Subject names what is being waited for, e.g. a mailbox or correlation id.
	Subject string
}

// Attempt is the state of one polling loop. It exists only for the duration of an Until call.
type Attempt struct {
	Start    time.Time
	Timeout  time.Duration
	Interval time.Duration
	Attempts int
	Found    bool
}

// TimeoutError is returned when the deadline passes without a match.
type TimeoutError struct {
	Subject  string
	Elapsed  time.Duration
	Timeout  time.Duration
	Attempts int

	// LastErr is the most recent transient failure, if any. It is informational only.
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s not found after %v (timeout %v, %d attempts)", e.Subject, e.Elapsed, e.Timeout, e.Attempts)
	if e.LastErr != nil {
		msg += fmt.Sprintf("; last error: %v", e.LastErr)
	}
	return msg
}

// Until calls fn until it reports a match or cfg.Timeout elapses.
//
// Attempts are issued strictly sequentially at start, start+Interval, ... and one last time at
// the deadline itself, so anything present at or before start+Timeout is observed. The context is
// checked between attempts; a sleep already in progress is not interrupted.
func Until[T any](ctx context.Context, cfg Config, fn Func[T]) (T, Attempt, error) {
	var zero T

	if cfg.Timeout <= 0 {
		return zero, Attempt{}, fmt.Errorf("poll timeout must be positive, got %v", cfg.Timeout)
	}
	if cfg.Interval <= 0 {
		return zero, Attempt{}, fmt.Errorf("poll interval must be positive, got %v", cfg.Interval)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	state := Attempt{
		Start:    clk.Now(),
		Timeout:  cfg.Timeout,
		Interval: cfg.Interval,
	}
	deadline := state.Start.Add(cfg.Timeout)

	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return zero, state, err
		}

		state.Attempts++
		result, found, err := fn(ctx)
		switch {
		case err != nil:
			lastErr = err
			log.Warn("poll attempt failed, retrying",
				zap.String("subject", cfg.Subject),
				zap.Int("attempt", state.Attempts),
				zap.Error(err))
		case found:
			state.Found = true
			return result, state, nil
		}

		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			break
		}
		clk.Sleep(min(cfg.Interval, remaining))
	}

	return zero, state, &TimeoutError{
		Subject:  cfg.Subject,
		Elapsed:  clk.Since(state.Start),
		Timeout:  cfg.Timeout,
		Attempts: state.Attempts,
		LastErr:  lastErr,
	}
}
