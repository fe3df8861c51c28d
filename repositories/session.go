package repositories

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/errors"
	"board-lab/store"
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

type SessionRepository struct {
	store contract.Store
	log   *slog.Logger
}

func NewSessionRepository(store contract.Store, log *slog.Logger) SessionRepository {
	return SessionRepository{store: store, log: log}
}

// CreateIfAbsent writes meta unless the session already exists.
// It returns whether this call created it, and the meta that is now stored.
func (r SessionRepository) CreateIfAbsent(ctx context.Context, meta domain.SessionMeta) (bool, domain.SessionMeta, error) {
	existing := meta
	created, err := r.store.Transact(ctx, MetaPath(meta.ID), func(current []byte) ([]byte, error) {
		if current != nil {
			m, err := DecodeMeta(current)
			if err != nil {
				return nil, err
			}
			existing = m
			return nil, errors.ErrTxAborted
		}
		existing = meta
		return json.Marshal(meta)
	})
	if err != nil {
		return false, domain.SessionMeta{}, err
	}
	return created, existing, nil
}

func (r SessionRepository) GetMeta(ctx context.Context, sessionID string) (domain.SessionMeta, bool, error) {
	v, found, err := r.store.Get(ctx, MetaPath(sessionID))
	if err != nil || !found {
		return domain.SessionMeta{}, false, err
	}
	m, err := DecodeMeta(v)
	return m, err == nil, err
}

func (r SessionRepository) MarkEnded(ctx context.Context, sessionID string) error {
	return r.store.Update(ctx, MetaPath(sessionID), map[string]any{"state": domain.SessionEnded})
}

// Join writes the participant entry. A rejoin refreshes it and keeps JoinedAt.
func (r SessionRepository) Join(ctx context.Context, sessionID string, p domain.Participant) error {
	_, err := r.store.Transact(ctx, ParticipantPath(sessionID, p.ID), func(current []byte) ([]byte, error) {
		if current != nil {
			if existing, err := DecodeParticipant(current); err == nil && !existing.JoinedAt.IsZero() {
				p.JoinedAt = existing.JoinedAt
			}
		}
		return json.Marshal(p)
	})
	return err
}

// Touch refreshes lastActiveAt of an existing participant only.
func (r SessionRepository) Touch(ctx context.Context, sessionID, uid string, now time.Time) (bool, error) {
	return r.store.Transact(ctx, ParticipantPath(sessionID, uid), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, errors.ErrTxAborted
		}
		return store.MergeFields(current, map[string]any{"lastActiveAt": now.UTC()})
	})
}

func (r SessionRepository) Leave(ctx context.Context, sessionID, uid string) error {
	return r.store.Remove(ctx, ParticipantPath(sessionID, uid))
}

// Participants reads every participant entry of the session, keyed by uid.
func (r SessionRepository) Participants(ctx context.Context, sessionID string) (map[string]domain.Participant, error) {
	puts, err := store.Snapshot(ctx, r.store, store.Join(root, sessionID, "participants")+"/")
	if err != nil {
		return nil, err
	}
	participants := make(map[string]domain.Participant, len(puts))
	for _, c := range puts {
		ref := ParseRef(sessionID, c.Path)
		p, err := DecodeParticipant(c.Value)
		if err != nil {
			r.log.Warn("Skipping unreadable participant", "path", c.Path, "error", err)
			continue
		}
		p.ID = ref.Key
		participants[ref.Key] = p
	}
	return participants, nil
}
