package services

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/domain/event"
	"board-lab/mention"
	"board-lab/moderation"
	"board-lab/repositories"
	"board-lab/runtime"
	"board-lab/runtime/workers"
	"board-lab/search"
	"board-lab/store/memstore"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	nanos atomic.Int64
}

func newFakeClock(at time.Time) *fakeClock {
	c := &fakeClock{}
	c.Set(at)
	return c
}

func (c *fakeClock) Set(at time.Time) { c.nanos.Store(at.UnixNano()) }
func (c *fakeClock) Now() time.Time   { return time.Unix(0, c.nanos.Load()).UTC() }

// env wires every service on an in-memory store, as the server does.
type env struct {
	log        *slog.Logger
	store      contract.Store
	clock      *fakeClock
	hub        *runtime.Hub
	registry   *SessionRegistry
	canvas     *CanvasReplicator
	presence   *PresenceTracker
	chat       *ChatChannel
	dispatcher *NotificationDispatcher
	index      *search.ChatIndex
}

func newEnv(t *testing.T) env {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	st := memstore.New(log)
	clock := newFakeClock(t0)

	cfg := runtime.DefaultHubConfig()
	cfg.ResampleInterval = 10 * time.Millisecond
	cfg.ResyncDelay = 10 * time.Millisecond
	supervisor := workers.NewSupervisor(log)
	hub := runtime.NewHub(log, st, supervisor, cfg).WithClock(clock.Now)

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	index := search.NewChatIndex(blugeWriter, log)
	moderator, err := moderation.NewModerator([]string{"darn"}, '*', log)
	require.NoError(t, err)
	resolver := mention.NewNameResolver()

	dispatcher := NewNotificationDispatcher(log, st, repositories.NewNotificationRepository(st, log),
		resolver, hub, runtime.Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond})
	dispatcher.now = clock.Now
	fanout := workers.NewEventFanout(log, make(chan event.DomainEvent, 64), time.Second, index)

	e := env{
		log:        log,
		store:      st,
		clock:      clock,
		hub:        hub,
		registry:   NewSessionRegistry(log, st, fanout),
		canvas:     NewCanvasReplicator(log, st, hub),
		presence:   NewPresenceTracker(log, st, hub),
		chat:       NewChatChannel(log, st, resolver, moderator, dispatcher, index, fanout, hub),
		dispatcher: dispatcher,
		index:      index,
	}
	e.registry.now = clock.Now
	e.canvas.now = clock.Now
	e.presence.now = clock.Now
	e.chat.now = clock.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		supervisor.Add(hub, fanout).Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = st.Close()
		_ = blugeWriter.Close()
	})
	return e
}

func (e env) join(t *testing.T, sessionID, uid, name string) domain.Session {
	s, err := e.registry.CreateOrJoin(context.Background(), sessionID, domain.User{ID: uid, DisplayName: name})
	require.NoError(t, err)
	return s
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "stream closed")
		return v
	case <-time.After(2 * time.Second):
		require.FailNow(t, "nothing received")
	}
	var zero T
	return zero
}
