package feed

import (
	"board-lab/contract"
	"board-lab/errors"
	"context"
	"fmt"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestWatcher_QueueDoesNotBlockSender(t *testing.T) {
	req := require.New(t)
	w := NewWatcher(context.Background(), nil)
	defer w.Close()

	// Given far more changes than any channel buffer while nobody reads
	for i := 0; i < 1000; i++ {
		req.True(w.Send(contract.Change{Kind: contract.Put, Path: fmt.Sprintf("a/%04d", i)}))
	}

	// Then they are all delivered in order
	for i := 0; i < 1000; i++ {
		c := <-w.Changes()
		req.Equal(fmt.Sprintf("a/%04d", i), c.Path)
	}
}

func TestWatcher_CloseEndsWithoutError(t *testing.T) {
	req := require.New(t)
	w := NewWatcher(context.Background(), nil)

	req.NoError(w.Close())
	req.NoError(w.Close())

	_, ok := <-w.Changes()
	req.False(ok)
	req.NoError(w.Err())
	req.False(w.Send(contract.Change{Path: "x"}))
}

func TestWatcher_EndReasons(t *testing.T) {
	t.Run("context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		w := NewWatcher(ctx, nil)
		cancel()
		for range w.Changes() {
		}
		require.ErrorIs(t, w.Err(), context.Canceled)
	})
	t.Run("shutdown", func(t *testing.T) {
		shutdown := make(chan struct{})
		w := NewWatcher(context.Background(), shutdown)
		close(shutdown)
		for range w.Changes() {
		}
		require.ErrorIs(t, w.Err(), errors.ErrStoreClosed)
	})
	t.Run("fail", func(t *testing.T) {
		w := NewWatcher(context.Background(), nil)
		w.Fail(errors.ErrTransientTransport)
		for range w.Changes() {
		}
		require.True(t, errors.IsTransient(w.Err()))
	})
}

func TestHub_RoutesByPrefixAndForgetsEnded(t *testing.T) {
	req := require.New(t)
	hub := NewHub()
	a := NewWatcher(context.Background(), nil)
	b := NewWatcher(context.Background(), nil)
	defer a.Close()
	hub.Add("sessions/a/", a)
	hub.Add("sessions/b/", b)

	// When b ends and a change is published for a
	_ = b.Close()
	<-b.Done()
	hub.Publish(contract.Change{Kind: contract.Put, Path: "sessions/a/meta"})

	// Then only a receives it and b has been dropped
	select {
	case c := <-a.Changes():
		req.Equal("sessions/a/meta", c.Path)
	case <-time.After(time.Second):
		req.Fail("change not delivered")
	}
	req.Equal(1, hub.Len())
}
