package services

import (
	"board-lab/runtime"
	"context"
)

// stream turns a hub subscription into a typed channel. Events for which
// convert reports false are skipped. The channel is closed when the
// subscription ends or ctx is done.
func stream[T any](ctx context.Context, sub *runtime.Subscription, convert func(runtime.Event) (T, bool)) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		defer sub.Close()
		for e := range sub.Events() {
			v, ok := convert(e)
			if !ok {
				continue
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
