package store

import (
	"context"
	"time"
)

// Backoff is the retry policy shared by connection initialisation and
// statement execution. The delay after the n-th failed attempt (0-based) is
// Base << n.
type Backoff struct {
	Attempts int
	Base     time.Duration

	// Sleep waits for d or until ctx is done. Nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ConnectBackoff is used when opening the database: 3 attempts, 2s, 4s.
var ConnectBackoff = Backoff{Attempts: 3, Base: 2 * time.Second}

// QueryBackoff is used for busy/locked statements: 3 attempts, 100ms, 200ms.
var QueryBackoff = Backoff{Attempts: 3, Base: 100 * time.Millisecond}

// Delay returns the wait after the given failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	return b.Base << attempt
}

// Run calls fn until it succeeds, returns an error retryable rejects, or the
// attempts are used up. The last error is returned.
func (b Backoff) Run(ctx context.Context, retryable func(error) bool, fn func(attempt int) error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts-1 {
			return err
		}
		if serr := b.sleep(ctx, b.Delay(attempt)); serr != nil {
			return err
		}
	}
	return err
}

func (b Backoff) sleep(ctx context.Context, d time.Duration) error {
	if b.Sleep != nil {
		return b.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func always(error) bool { return true }
