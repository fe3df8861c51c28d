package runtime

import (
	"board-lab/errors"
	"context"
	"time"
)

// Backoff doubles a delay up to a ceiling.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	next time.Duration
}

func (b *Backoff) Next() time.Duration {
	if b.next == 0 {
		b.next = b.Base
	}
	d := b.next
	b.next = min(b.next*2, b.Max)
	return d
}

func (b *Backoff) Reset() {
	b.next = 0
}

// Retry calls fn until it succeeds, fails with a non transient error or
// attempts are exhausted. It waits between attempts following backoff.
func Retry(ctx context.Context, attempts int, backoff Backoff, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff.Next()):
		}
	}
	return err
}
