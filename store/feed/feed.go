// Package feed delivers store changes to watchers without ever blocking the
// writer: each watcher owns an unbounded queue drained by its own goroutine.
package feed

import (
	"board-lab/contract"
	"board-lab/errors"
	"context"
	"strings"
	"sync"
)

// Watcher implements contract.Watcher on top of an unbounded queue.
type Watcher struct {
	in       chan contract.Change
	out      chan contract.Change
	stop     chan struct{}
	failed   chan error
	exited   chan struct{}
	shutdown <-chan struct{}
	stopOnce sync.Once
	err      error
}

// NewWatcher starts the queue goroutine. The watcher ends when ctx is done,
// when Close or Fail is called, or when shutdown is closed by its owner.
func NewWatcher(ctx context.Context, shutdown <-chan struct{}) *Watcher {
	w := &Watcher{
		in:       make(chan contract.Change, 64),
		out:      make(chan contract.Change),
		stop:     make(chan struct{}),
		failed:   make(chan error, 1),
		exited:   make(chan struct{}),
		shutdown: shutdown,
	}
	go w.pump(ctx)
	return w
}

func (w *Watcher) pump(ctx context.Context) {
	defer close(w.out)
	defer close(w.exited)
	var queue []contract.Change
	for {
		var out chan contract.Change
		var next contract.Change
		if len(queue) > 0 {
			out = w.out
			next = queue[0]
		}
		select {
		case c := <-w.in:
			queue = append(queue, c)
		case out <- next:
			queue[0] = contract.Change{}
			queue = queue[1:]
		case err := <-w.failed:
			w.err = err
			return
		case <-w.stop:
			return
		case <-w.shutdown:
			w.err = errors.ErrStoreClosed
			return
		case <-ctx.Done():
			w.err = ctx.Err()
			return
		}
	}
}

// Send queues a change. It reports false once the watcher has ended.
func (w *Watcher) Send(c contract.Change) bool {
	select {
	case w.in <- c:
		return true
	case <-w.exited:
		return false
	}
}

// Fail ends the watcher with err. Changes still queued are dropped.
func (w *Watcher) Fail(err error) {
	select {
	case w.failed <- err:
	default:
	}
}

// Done is closed once the watcher has ended.
func (w *Watcher) Done() <-chan struct{} {
	return w.exited
}

func (w *Watcher) Changes() <-chan contract.Change {
	return w.out
}

// Err is valid once Changes has been closed.
func (w *Watcher) Err() error {
	return w.err
}

func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })
	return nil
}

type entry struct {
	prefix  string
	watcher *Watcher
}

// Hub routes changes to the watchers whose prefix matches.
// It must be owned by a single goroutine.
type Hub struct {
	entries []entry
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Add(prefix string, w *Watcher) {
	h.entries = append(h.entries, entry{prefix: prefix, watcher: w})
}

// Publish sends c to every matching watcher and forgets the ended ones.
func (h *Hub) Publish(c contract.Change) {
	kept := h.entries[:0]
	for _, e := range h.entries {
		if strings.HasPrefix(c.Path, e.prefix) && !e.watcher.Send(c) {
			continue
		}
		select {
		case <-e.watcher.Done():
			continue
		default:
		}
		kept = append(kept, e)
	}
	clear(h.entries[len(kept):])
	h.entries = kept
}

func (h *Hub) Len() int {
	return len(h.entries)
}
