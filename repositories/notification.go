//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/errors"
	"board-lab/store"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

type INotificationRepository interface {
	Enqueue(ctx context.Context, n domain.Notification) (string, error)
	List(ctx context.Context, sessionID, uid string) ([]domain.Notification, error)
	Ack(ctx context.Context, sessionID, uid, id string) error
	AckAll(ctx context.Context, sessionID, uid string) error
	Clear(ctx context.Context, sessionID, uid string) error
}

type NotificationRepository struct {
	store contract.Store
	log   *slog.Logger
}

func NewNotificationRepository(store contract.Store, log *slog.Logger) NotificationRepository {
	return NotificationRepository{store: store, log: log}
}

func (r NotificationRepository) Enqueue(ctx context.Context, n domain.Notification) (string, error) {
	n.ID = ""
	b, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return r.store.Push(ctx, NotificationParent(n.SessionID, n.RecipientID), b)
}

// List returns the whole queue of uid, acked entries included, oldest first.
func (r NotificationRepository) List(ctx context.Context, sessionID, uid string) ([]domain.Notification, error) {
	puts, err := store.Snapshot(ctx, r.store, NotificationParent(sessionID, uid)+"/")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(puts))
	for _, c := range puts {
		ref := ParseRef(sessionID, c.Path)
		n, err := DecodeNotification(ref.Key, c.Value)
		if err != nil {
			r.log.Warn("Skipping unreadable notification", "path", c.Path, "error", err)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Ack marks one notification as acked. Missing or already acked ids are a no-op.
func (r NotificationRepository) Ack(ctx context.Context, sessionID, uid, id string) error {
	if id == "" || strings.Contains(id, "/") {
		return nil
	}
	_, err := r.store.Transact(ctx, NotificationPath(sessionID, uid, id), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, errors.ErrTxAborted
		}
		n, err := DecodeNotification(id, current)
		if err != nil {
			return nil, err
		}
		if n.Acked {
			return nil, errors.ErrTxAborted
		}
		return store.MergeFields(current, map[string]any{"acked": true})
	})
	return err
}

func (r NotificationRepository) AckAll(ctx context.Context, sessionID, uid string) error {
	all, err := r.List(ctx, sessionID, uid)
	if err != nil {
		return err
	}
	for _, n := range all {
		if n.Acked {
			continue
		}
		if err = r.Ack(ctx, sessionID, uid, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// Clear deletes the acked notifications of uid.
func (r NotificationRepository) Clear(ctx context.Context, sessionID, uid string) error {
	all, err := r.List(ctx, sessionID, uid)
	if err != nil {
		return err
	}
	for _, n := range all {
		if !n.Acked {
			continue
		}
		if err = r.store.Remove(ctx, NotificationPath(sessionID, uid, n.ID)); err != nil {
			return err
		}
	}
	return nil
}
