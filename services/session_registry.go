// Package services exposes the session layer operations. Services hold no
// state of their own: writes go to the store, reads come from one-shot
// snapshots or from the session hub streams.
package services

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/domain/event"
	"board-lab/errors"
	"board-lab/projection"
	"board-lab/repositories"
	"board-lab/store"
	"context"
	"fmt"
	"log/slog"
	"time"
)

type SessionRegistry struct {
	log       *slog.Logger
	store     contract.Store
	sessions  repositories.SessionRepository
	canvas    repositories.CanvasRepository
	publisher contract.EventPublisher
	now       func() time.Time
}

func NewSessionRegistry(log *slog.Logger, store contract.Store, publisher contract.EventPublisher) *SessionRegistry {
	return &SessionRegistry{
		log:       log,
		store:     store,
		sessions:  repositories.NewSessionRepository(store, log),
		canvas:    repositories.NewCanvasRepository(store, log),
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateOrJoin creates the session when absent, with the caller as host,
// then adds or refreshes the caller's participant entry. Joining twice is
// the same as joining once.
func (r *SessionRegistry) CreateOrJoin(ctx context.Context, sessionID string, user domain.User) (domain.Session, error) {
	if err := validateUser(sessionID, user); err != nil {
		return domain.Session{}, err
	}
	now := r.now().UTC()
	created, meta, err := r.sessions.CreateIfAbsent(ctx, domain.NewSessionMeta(sessionID, user.ID, now))
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session %s: %w", sessionID, err)
	}
	if created {
		r.log.Info("Session created", "session_id", sessionID, "host", user.ID)
	}
	// Retried by every joiner so a creator that failed right after the meta
	// write never leaves the session without settings.
	if _, err = r.canvas.EnsureSettings(ctx, sessionID); err != nil {
		return domain.Session{}, fmt.Errorf("init settings of %s: %w", sessionID, err)
	}
	if meta.Ended() {
		return domain.Session{}, errors.ErrSessionEnded
	}

	p := domain.Participant{
		ID:           user.ID,
		DisplayName:  user.DisplayName,
		PhotoURL:     user.PhotoURL,
		LastActiveAt: now,
		JoinedAt:     now,
		IsHost:       meta.HostID == user.ID,
	}
	if err = r.sessions.Join(ctx, sessionID, p); err != nil {
		return domain.Session{}, fmt.Errorf("join session %s: %w", sessionID, err)
	}
	r.log.Debug("Participant joined", "session_id", sessionID, "uid", user.ID)
	return r.Get(ctx, sessionID)
}

// Leave removes the participant entry of uid.
func (r *SessionRegistry) Leave(ctx context.Context, sessionID, uid string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if err := validateUID(uid); err != nil {
		return err
	}
	if _, err := activeMeta(ctx, r.sessions, sessionID); err != nil {
		return err
	}
	if err := r.sessions.Leave(ctx, sessionID, uid); err != nil {
		return fmt.Errorf("leave session %s: %w", sessionID, err)
	}
	r.log.Debug("Participant left", "session_id", sessionID, "uid", uid)
	return nil
}

// End moves the session to its terminal state. Only the host may end it,
// and ending an ended session again is a no-op.
func (r *SessionRegistry) End(ctx context.Context, sessionID, uid string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	meta, err := loadMeta(ctx, r.sessions, sessionID)
	if err != nil {
		return err
	}
	if meta.HostID != uid {
		return errors.ErrNotHost
	}
	if meta.Ended() {
		return nil
	}
	if err = r.sessions.MarkEnded(ctx, sessionID); err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	r.log.Info("Session ended", "session_id", sessionID, "host", uid)
	r.publisher.Publish(event.SessionEnded{Session: sessionID, HostID: uid, At: r.now().UTC()})
	return nil
}

// Get reads the whole session once.
func (r *SessionRegistry) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	if err := validateSessionID(sessionID); err != nil {
		return domain.Session{}, err
	}
	changes, err := store.Snapshot(ctx, r.store, repositories.SessionPrefix(sessionID))
	if err != nil {
		return domain.Session{}, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	view := projection.NewSession(sessionID, r.log)
	for _, c := range changes {
		view.Apply(c)
	}
	if !view.Exists() {
		return domain.Session{}, errors.ErrSessionNotFound
	}
	return view.Snapshot(), nil
}

func loadMeta(ctx context.Context, sessions repositories.SessionRepository, sessionID string) (domain.SessionMeta, error) {
	meta, found, err := sessions.GetMeta(ctx, sessionID)
	if err != nil {
		return domain.SessionMeta{}, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	if !found {
		return domain.SessionMeta{}, errors.ErrSessionNotFound
	}
	return meta, nil
}

// activeMeta rejects writes to sessions that are missing or ended.
func activeMeta(ctx context.Context, sessions repositories.SessionRepository, sessionID string) (domain.SessionMeta, error) {
	meta, err := loadMeta(ctx, sessions, sessionID)
	if err != nil {
		return meta, err
	}
	if meta.Ended() {
		return meta, errors.ErrSessionEnded
	}
	return meta, nil
}
