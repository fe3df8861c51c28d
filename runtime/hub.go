// Package runtime owns the live side of sessions: one actor per watched
// session holding its projection, and the hub that starts and stops them.
// It orchestrates delivery without containing business rules.
package runtime

import (
	"board-lab/contract"
	"board-lab/errors"
	"context"
	"log/slog"
	"sync"
	"time"
)

type HubConfig struct {
	// SubscriberBuffer is the capacity of every subscription channel.
	SubscriberBuffer int
	// ResampleInterval is how often a session re-classifies its roster.
	ResampleInterval time.Duration
	// ResyncDelay is how long a lagging subscriber is left alone before
	// it is sent a fresh snapshot.
	ResyncDelay time.Duration
	// WatchBackoff paces re-watching after a transport failure.
	WatchBackoff Backoff
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBuffer: 64,
		ResampleInterval: time.Second,
		ResyncDelay:      50 * time.Millisecond,
		WatchBackoff:     Backoff{Base: 100 * time.Millisecond, Max: 5 * time.Second},
	}
}

type sessionHandle struct {
	worker *SessionWorker
	cancel context.CancelFunc
	subs   map[uint64]struct{}
}

type subscribeReq struct {
	sub   *Subscription
	reply chan error
}

type unsubscribeReq struct {
	sub *Subscription
}

type workerExited struct {
	sessionID string
	worker    *SessionWorker
}

// Hub routes subscriptions to session workers. A worker exists while its
// session has at least one subscriber; the last unsubscribe stops it, which
// releases its store watch.
type Hub struct {
	log        *slog.Logger
	store      contract.Store
	supervisor contract.ISupervisor
	cfg        HubConfig
	now        func() time.Time
	requests   chan any
	stopped    chan struct{}
	stopOnce   sync.Once
	sessions   map[string]*sessionHandle
	nextID     uint64
}

func NewHub(log *slog.Logger, store contract.Store, supervisor contract.ISupervisor, cfg HubConfig) *Hub {
	return &Hub{
		log:        log,
		store:      store,
		supervisor: supervisor,
		cfg:        cfg,
		now:        time.Now,
		requests:   make(chan any),
		stopped:    make(chan struct{}),
		sessions:   make(map[string]*sessionHandle),
	}
}

// WithClock replaces the clock used for presence classification.
func (h *Hub) WithClock(now func() time.Time) *Hub {
	h.now = now
	return h
}

// Run serves subscription requests until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	h.log.Info("Starting session hub")
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.stopped) })
			for id, handle := range h.sessions {
				handle.cancel()
				delete(h.sessions, id)
			}
			h.log.Debug("Context done, session hub stopped")
			return nil
		case req := <-h.requests:
			switch r := req.(type) {
			case subscribeReq:
				r.reply <- h.handleSubscribe(ctx, r.sub)
			case unsubscribeReq:
				h.handleUnsubscribe(r.sub)
			case workerExited:
				h.handleExited(r)
			}
		}
	}
}

// Subscribe opens a stream of topic for sessionID. The subscription is
// closed automatically when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, sessionID string, topic Topic, recipient string) (*Subscription, error) {
	sub := &Subscription{
		SessionID: sessionID,
		Topic:     topic,
		Recipient: recipient,
		events:    make(chan Event, h.cfg.SubscriberBuffer),
		done:      make(chan struct{}),
		hub:       h,
	}
	reply := make(chan error, 1)
	select {
	case h.requests <- subscribeReq{sub: sub, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.stopped:
		return nil, errors.ErrStoreClosed
	}
	if err := <-reply; err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (h *Hub) unsubscribe(sub *Subscription) {
	select {
	case h.requests <- unsubscribeReq{sub: sub}:
	case <-h.stopped:
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, sub *Subscription) error {
	h.nextID++
	sub.id = h.nextID
	for attempt := 0; attempt < 2; attempt++ {
		handle, ok := h.sessions[sub.SessionID]
		if !ok {
			handle = h.startWorker(ctx, sub.SessionID)
		}
		if handle.worker.add(sub) {
			handle.subs[sub.id] = struct{}{}
			return nil
		}
		// The worker ended on its own, typically because the session ended.
		handle.cancel()
		delete(h.sessions, sub.SessionID)
	}
	close(sub.events)
	return nil
}

func (h *Hub) startWorker(ctx context.Context, sessionID string) *sessionHandle {
	wctx, cancel := context.WithCancel(ctx)
	worker := NewSessionWorker(h.log, h.store, sessionID, h.cfg, h.now, h.exited)
	handle := &sessionHandle{worker: worker, cancel: cancel, subs: make(map[uint64]struct{})}
	h.sessions[sessionID] = handle
	h.supervisor.Start(wctx, worker)
	h.log.Debug("Session worker started", "session_id", sessionID)
	return handle
}

func (h *Hub) handleUnsubscribe(sub *Subscription) {
	handle, ok := h.sessions[sub.SessionID]
	if !ok {
		return
	}
	if _, ok = handle.subs[sub.id]; !ok {
		return
	}
	delete(handle.subs, sub.id)
	handle.worker.remove(sub)
	if len(handle.subs) == 0 {
		handle.cancel()
		delete(h.sessions, sub.SessionID)
		h.log.Debug("Last subscriber left, session worker stopped", "session_id", sub.SessionID)
	}
}

func (h *Hub) handleExited(e workerExited) {
	handle, ok := h.sessions[e.sessionID]
	if !ok || handle.worker != e.worker {
		return
	}
	handle.cancel()
	delete(h.sessions, e.sessionID)
}

// exited is called by a worker goroutine once it has closed all its subscriptions.
func (h *Hub) exited(sessionID string, w *SessionWorker) {
	select {
	case h.requests <- workerExited{sessionID: sessionID, worker: w}:
	case <-h.stopped:
	}
}
