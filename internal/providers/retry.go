package providers

import (
	"context"
	"fmt"
	"time"
)

// Backoff retries an operation with exponential delay. Shared by every
// provider that talks to a remote collaborator.
type Backoff struct {
	Base     time.Duration
	Factor   float64
	Cap      time.Duration
	Attempts int
}

func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Factor: 2, Cap: 30 * time.Second, Attempts: 3}
}

// Do runs op up to Attempts times, sleeping between failures. The first
// attempt runs immediately. Returns the last error wrapped as a
// collaborator failure once the budget is spent.
func (b Backoff) Do(ctx context.Context, op func() error) error {
	delay := b.Base
	var last error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		if err := op(); err == nil {
			return nil
		} else {
			last = err
		}
		if attempt == b.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * b.Factor)
		if delay > b.Cap {
			delay = b.Cap
		}
	}
	return fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, last)
}
