package runtime

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/errors"
	"board-lab/projection"
	"board-lab/repositories"
	"context"
	stderrors "errors"
	"log/slog"
	"time"
)

var errSessionOver = stderrors.New("session ended")

type subState struct {
	sub     *Subscription
	primed  bool
	stale   bool
	lastSeq uint64
	roster  []domain.RosterEntry
}

type workerMsg struct {
	add    *Subscription
	remove *Subscription
}

// SessionWorker is the single owner of one session's projection and of its
// subscribers. It watches sessions/{id}/ and turns changes into events.
// Sends to subscribers never block: a full subscriber is marked stale and
// later receives a fresh snapshot instead of the deltas it missed.
type SessionWorker struct {
	log       *slog.Logger
	store     contract.Store
	sessionID string
	cfg       HubConfig
	now       func() time.Time
	onExit    func(string, *SessionWorker)
	inbox     chan workerMsg
	done      chan struct{}
	subs      map[uint64]*subState
	view      *projection.Session
	synced    bool
}

func NewSessionWorker(log *slog.Logger, store contract.Store, sessionID string, cfg HubConfig,
	now func() time.Time, onExit func(string, *SessionWorker)) *SessionWorker {
	return &SessionWorker{
		log:       log.With("session_id", sessionID),
		store:     store,
		sessionID: sessionID,
		cfg:       cfg,
		now:       now,
		onExit:    onExit,
		inbox:     make(chan workerMsg),
		done:      make(chan struct{}),
		subs:      make(map[uint64]*subState),
	}
}

// add hands a subscription over. It reports false when the worker has ended.
func (w *SessionWorker) add(sub *Subscription) bool {
	select {
	case w.inbox <- workerMsg{add: sub}:
		return true
	case <-w.done:
		return false
	}
}

func (w *SessionWorker) remove(sub *Subscription) {
	select {
	case w.inbox <- workerMsg{remove: sub}:
	case <-w.done:
	}
}

// Run watches the session until ctx is done or the session ends. A broken
// watch is re-opened with backoff and every subscriber is replayed.
// A panic leaves subscribers in place; the restarted Run replays them.
func (w *SessionWorker) Run(ctx context.Context) error {
	backoff := w.cfg.WatchBackoff
	for {
		w.reset()
		err := w.watch(ctx)
		switch {
		case ctx.Err() != nil, stderrors.Is(err, errSessionOver):
			w.shutdown()
			return nil
		case errors.IsTransient(err):
			w.log.Warn("Session watch lost, retrying", "error", err)
		default:
			w.log.Error("Session watch failed, retrying", "error", err)
		}
		if !w.wait(ctx, backoff.Next()) {
			w.shutdown()
			return nil
		}
	}
}

func (w *SessionWorker) reset() {
	w.view = projection.NewSession(w.sessionID, w.log)
	w.synced = false
	for _, st := range w.subs {
		st.primed = false
		st.stale = false
	}
}

// wait sleeps for d while still serving the inbox. It reports false when
// ctx is done.
func (w *SessionWorker) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case msg := <-w.inbox:
			w.handle(msg)
		case <-timer.C:
			return true
		}
	}
}

func (w *SessionWorker) watch(ctx context.Context) error {
	watcher, err := w.store.Watch(ctx, repositories.SessionPrefix(w.sessionID))
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	ticker := time.NewTicker(w.cfg.ResampleInterval)
	defer ticker.Stop()
	var resync <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-w.inbox:
			w.handle(msg)
		case c, ok := <-watcher.Changes():
			if !ok {
				if err = watcher.Err(); err != nil {
					return err
				}
				return errors.Transient(errors.ErrStoreClosed)
			}
			if w.apply(c) {
				return errSessionOver
			}
		case <-ticker.C:
			w.resample()
		case <-resync:
			resync = nil
			w.resyncStale()
		}
		if resync == nil && w.hasStale() {
			resync = time.After(w.cfg.ResyncDelay)
		}
	}
}

func (w *SessionWorker) handle(msg workerMsg) {
	switch {
	case msg.add != nil:
		st := &subState{sub: msg.add}
		w.subs[msg.add.id] = st
		if w.synced {
			w.prime(st)
		}
	case msg.remove != nil:
		if st, ok := w.subs[msg.remove.id]; ok {
			delete(w.subs, msg.remove.id)
			close(st.sub.events)
		}
	}
}

// apply folds a change into the view and delivers it. It reports true once
// the session is ended and every subscriber has its final state.
func (w *SessionWorker) apply(c contract.Change) bool {
	if c.Kind == contract.Synced {
		w.synced = true
		for _, st := range w.subs {
			w.prime(st)
		}
		return w.view.Meta().Ended()
	}
	delta := w.view.Apply(c)
	if !w.synced || delta.Empty() {
		return false
	}
	for _, st := range w.subs {
		if !st.primed || st.stale {
			continue
		}
		w.deliver(st, delta)
	}
	return delta.Meta && w.view.Meta().Ended()
}

func (w *SessionWorker) deliver(st *subState, d projection.Delta) {
	switch st.sub.Topic {
	case TopicCanvas:
		if d.Canvas != nil {
			w.send(st, Event{Canvas: d.Canvas})
		}
	case TopicRoster:
		if d.Participants {
			w.sendRoster(st)
		}
	case TopicChat:
		if d.Chat != nil {
			w.sendChat(st)
		}
	case TopicNotifications:
		if d.Recipient == st.sub.Recipient {
			w.send(st, Event{Notifications: w.view.Pending(st.sub.Recipient)})
		}
	}
}

// prime sends the full current state of the topic.
func (w *SessionWorker) prime(st *subState) {
	st.primed = true
	st.stale = false
	switch st.sub.Topic {
	case TopicCanvas:
		canvas := w.view.Canvas()
		w.send(st, Event{Canvas: &domain.CanvasEvent{Snapshot: &canvas}})
	case TopicRoster:
		w.sendRoster(st)
	case TopicChat:
		w.sendChat(st)
	case TopicNotifications:
		w.send(st, Event{Notifications: w.view.Pending(st.sub.Recipient)})
	}
}

func (w *SessionWorker) sendRoster(st *subState) {
	roster := w.view.Roster(w.now())
	if w.send(st, Event{Roster: roster}) {
		st.roster = roster
	}
}

// sendChat delivers every message after the subscriber cursor, in sequence order.
func (w *SessionWorker) sendChat(st *subState) {
	for _, m := range w.view.ChatAfter(st.lastSeq) {
		if !w.send(st, Event{Chat: &m}) {
			return
		}
		st.lastSeq = m.Sequence
	}
}

func (w *SessionWorker) send(st *subState, e Event) bool {
	select {
	case st.sub.events <- e:
		return true
	default:
		if !st.stale {
			w.log.Debug("Subscriber is lagging, will resync", "topic", st.sub.Topic.String())
		}
		st.stale = true
		return false
	}
}

// resample re-classifies the roster so ONLINE/AWAY flips are pushed even
// without any write.
func (w *SessionWorker) resample() {
	if !w.synced {
		return
	}
	roster := w.view.Roster(w.now())
	for _, st := range w.subs {
		if st.sub.Topic != TopicRoster || !st.primed || st.stale {
			continue
		}
		if domain.SameClassification(st.roster, roster) {
			continue
		}
		if w.send(st, Event{Roster: roster}) {
			st.roster = roster
		}
	}
}

func (w *SessionWorker) resyncStale() {
	for _, st := range w.subs {
		if !st.stale {
			continue
		}
		if st.sub.Topic == TopicChat {
			st.stale = false
			w.sendChat(st)
			continue
		}
		w.prime(st)
	}
}

func (w *SessionWorker) hasStale() bool {
	for _, st := range w.subs {
		if st.stale {
			return true
		}
	}
	return false
}

// shutdown closes every subscription and reports the exit to the hub.
func (w *SessionWorker) shutdown() {
	for id, st := range w.subs {
		delete(w.subs, id)
		close(st.sub.events)
	}
	close(w.done)
	w.onExit(w.sessionID, w)
}
