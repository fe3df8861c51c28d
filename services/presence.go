package services

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/repositories"
	"board-lab/runtime"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PresenceTracker refreshes heartbeats and serves the classified roster.
// Liveness is never stored, it is derived from lastActiveAt when read.
type PresenceTracker struct {
	log      *slog.Logger
	sessions repositories.SessionRepository
	hub      *runtime.Hub
	now      func() time.Time
}

func NewPresenceTracker(log *slog.Logger, store contract.Store, hub *runtime.Hub) *PresenceTracker {
	return &PresenceTracker{
		log:      log,
		sessions: repositories.NewSessionRepository(store, log),
		hub:      hub,
		now:      time.Now,
	}
}

// Heartbeat marks uid as active now. It is fire and forget: failures are
// logged and the next beat catches up. A participant that left is not
// brought back.
func (p *PresenceTracker) Heartbeat(ctx context.Context, sessionID, uid string) {
	touched, err := p.sessions.Touch(ctx, sessionID, uid, p.now())
	if err != nil {
		p.log.Debug("Heartbeat lost", "session_id", sessionID, "uid", uid, "error", err)
		return
	}
	if !touched {
		p.log.Debug("Heartbeat from unknown participant", "session_id", sessionID, "uid", uid)
	}
}

// Roster classifies every participant at the current time.
func (p *PresenceTracker) Roster(ctx context.Context, sessionID string) ([]domain.RosterEntry, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	if _, err := loadMeta(ctx, p.sessions, sessionID); err != nil {
		return nil, err
	}
	participants, err := p.sessions.Participants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read roster of %s: %w", sessionID, err)
	}
	return domain.Roster(participants, p.now()), nil
}

// WatchRoster streams the roster on every participant change and whenever
// someone crosses the presence window.
func (p *PresenceTracker) WatchRoster(ctx context.Context, sessionID string) (<-chan []domain.RosterEntry, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	sub, err := p.hub.Subscribe(ctx, sessionID, runtime.TopicRoster, "")
	if err != nil {
		return nil, err
	}
	return stream(ctx, sub, func(e runtime.Event) ([]domain.RosterEntry, bool) {
		return e.Roster, e.Roster != nil
	}), nil
}
