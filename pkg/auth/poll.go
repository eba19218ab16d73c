package auth

import (
	"context"
	"strings"
	"time"
)

// PollPolicy bounds the wait for the out-of-band approval.
type PollPolicy struct {
	Attempts  int
	FirstWait time.Duration
	Interval  time.Duration
}

// DefaultPollPolicy waits at most about five minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Attempts:  60,
		FirstWait: 15 * time.Second,
		Interval:  5 * time.Second,
	}
}

// Wait returns the delay before the given zero-based attempt.
func (p PollPolicy) Wait(attempt int) time.Duration {
	if attempt == 0 {
		return p.FirstWait
	}
	return p.Interval
}

type PollDecision int

const (
	PollContinue PollDecision = iota
	PollValidated
)

func (d PollDecision) String() string {
	if d == PollValidated {
		return "validated"
	}
	return "continue"
}

// Decide maps a transaction state to the next step of the poll loop.
func Decide(state string) PollDecision {
	if strings.EqualFold(strings.TrimSpace(state), "validated") {
		return PollValidated
	}
	return PollContinue
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
