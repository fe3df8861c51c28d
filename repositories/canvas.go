package repositories

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/errors"
	"context"
	"encoding/json"
	"log/slog"
)

type CanvasRepository struct {
	store contract.Store
	log   *slog.Logger
}

func NewCanvasRepository(store contract.Store, log *slog.Logger) CanvasRepository {
	return CanvasRepository{store: store, log: log}
}

// Append stores a new element and returns its id.
func (r CanvasRepository) Append(ctx context.Context, sessionID string, kind domain.ElementKind, element any) (string, error) {
	b, err := json.Marshal(element)
	if err != nil {
		return "", err
	}
	return r.store.Push(ctx, ElementParent(sessionID, kind), b)
}

// EnsureSettings writes the default settings record unless one exists.
func (r CanvasRepository) EnsureSettings(ctx context.Context, sessionID string) (bool, error) {
	return r.store.Transact(ctx, SettingsPath(sessionID), func(current []byte) ([]byte, error) {
		if current != nil {
			return nil, errors.ErrTxAborted
		}
		return json.Marshal(domain.DefaultSettingsRecord())
	})
}

// PatchSettings merges the patch field by field, last write wins on (rev, by).
// A patch without revision gets the next one. It reports whether any field won.
func (r CanvasRepository) PatchSettings(ctx context.Context, sessionID string, patch domain.SettingsPatch, by string) (bool, error) {
	return r.store.Transact(ctx, SettingsPath(sessionID), func(current []byte) ([]byte, error) {
		record := domain.SettingsRecord{}
		if current != nil {
			decoded, err := DecodeSettings(current)
			if err != nil {
				r.log.Warn("Discarding unreadable settings record", "session_id", sessionID, "error", err)
			} else if decoded != nil {
				record = decoded
			}
		}
		rev := patch.Rev
		if rev == 0 {
			rev = record.MaxRev() + 1
		}
		merged, changed := record.Merge(patch.Record(rev, by))
		if !changed {
			return nil, errors.ErrTxAborted
		}
		return json.Marshal(merged)
	})
}
