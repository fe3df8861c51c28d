package workers

import (
	"board-lab/contract"
	"context"
	"log/slog"
	"time"
)

// HeartbeatWorker keeps one participant marked as active. It beats on a
// fixed local interval and right away on Touch, which the client calls on
// explicit user activity.
type HeartbeatWorker struct {
	log       *slog.Logger
	presence  contract.Heartbeater
	sessionID string
	uid       string
	interval  time.Duration
	touch     chan struct{}
}

func NewHeartbeatWorker(log *slog.Logger, presence contract.Heartbeater, sessionID, uid string, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:       log,
		presence:  presence,
		sessionID: sessionID,
		uid:       uid,
		interval:  interval,
		touch:     make(chan struct{}, 1),
	}
}

// Touch requests an immediate beat. Touches arriving faster than beats are merged.
func (w *HeartbeatWorker) Touch() {
	select {
	case w.touch <- struct{}{}:
	default:
	}
}

// Run executes the main loop of the worker until ctx is done.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Debug("Starting heartbeat worker", "session_id", w.sessionID, "uid", w.uid)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.presence.Heartbeat(ctx, w.sessionID, w.uid)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.presence.Heartbeat(ctx, w.sessionID, w.uid)
		case <-w.touch:
			w.presence.Heartbeat(ctx, w.sessionID, w.uid)
			ticker.Reset(w.interval)
		}
	}
}
