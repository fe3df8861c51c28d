package services

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/mention"
	"board-lab/repositories"
	"board-lab/runtime"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

const dispatchAttempts = 5

// NotificationDispatcher turns mentions into per-recipient notifications.
// Tokens are resolved against the roster as it is at dispatch time.
type NotificationDispatcher struct {
	log           *slog.Logger
	sessions      repositories.SessionRepository
	notifications repositories.INotificationRepository
	resolver      contract.MentionResolver
	hub           *runtime.Hub
	backoff       runtime.Backoff
	now           func() time.Time
}

func NewNotificationDispatcher(log *slog.Logger, store contract.Store, notifications repositories.INotificationRepository,
	resolver contract.MentionResolver, hub *runtime.Hub, backoff runtime.Backoff) *NotificationDispatcher {
	return &NotificationDispatcher{
		log:           log,
		sessions:      repositories.NewSessionRepository(store, log),
		notifications: notifications,
		resolver:      resolver,
		hub:           hub,
		backoff:       backoff,
		now:           time.Now,
	}
}

// Dispatch enqueues one notification per resolved recipient, the sender
// excepted. A participant mentioned by several tokens is notified once per token.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, sessionID string, msg domain.ChatMessage) error {
	if len(msg.Mentions) == 0 {
		return nil
	}
	var participants map[string]domain.Participant
	err := runtime.Retry(ctx, dispatchAttempts, d.backoff, func() error {
		var err error
		participants, err = d.sessions.Participants(ctx, sessionID)
		return err
	})
	if err != nil {
		return fmt.Errorf("read roster of %s: %w", sessionID, err)
	}

	roster := domain.Roster(participants, d.now())
	recipients := lo.Filter(mention.Recipients(d.resolver, msg.Mentions, roster), func(uid string, _ int) bool {
		return uid != msg.SenderID
	})
	for _, uid := range recipients {
		n := domain.Notification{
			SessionID:   sessionID,
			RecipientID: uid,
			SenderID:    msg.SenderID,
			SenderName:  msg.SenderName,
			Message:     msg.Content,
			MessageSeq:  msg.Sequence,
			Timestamp:   msg.Timestamp,
		}
		err = runtime.Retry(ctx, dispatchAttempts, d.backoff, func() error {
			_, err := d.notifications.Enqueue(ctx, n)
			return err
		})
		if err != nil {
			return fmt.Errorf("notify %s in %s: %w", uid, sessionID, err)
		}
	}
	d.log.Debug("Mentions dispatched", "session_id", sessionID, "sequence", msg.Sequence, "notifications", len(recipients))
	return nil
}

// Queue lists the un-acked notifications of uid, newest first.
func (d *NotificationDispatcher) Queue(ctx context.Context, sessionID, uid string) ([]domain.Notification, error) {
	if err := d.validate(sessionID, uid); err != nil {
		return nil, err
	}
	all, err := d.notifications.List(ctx, sessionID, uid)
	if err != nil {
		return nil, err
	}
	return domain.PendingNewestFirst(all), nil
}

// WatchQueue streams the un-acked queue of uid on every change.
func (d *NotificationDispatcher) WatchQueue(ctx context.Context, sessionID, uid string) (<-chan []domain.Notification, error) {
	if err := d.validate(sessionID, uid); err != nil {
		return nil, err
	}
	sub, err := d.hub.Subscribe(ctx, sessionID, runtime.TopicNotifications, uid)
	if err != nil {
		return nil, err
	}
	return stream(ctx, sub, func(e runtime.Event) ([]domain.Notification, bool) {
		return e.Notifications, e.Notifications != nil
	}), nil
}

// Ack is idempotent, unknown ids included.
func (d *NotificationDispatcher) Ack(ctx context.Context, sessionID, uid, id string) error {
	if err := d.validate(sessionID, uid); err != nil {
		return err
	}
	return d.notifications.Ack(ctx, sessionID, uid, id)
}

func (d *NotificationDispatcher) AckAll(ctx context.Context, sessionID, uid string) error {
	if err := d.validate(sessionID, uid); err != nil {
		return err
	}
	return d.notifications.AckAll(ctx, sessionID, uid)
}

// Clear deletes the acked notifications of uid. Pending ones are kept.
func (d *NotificationDispatcher) Clear(ctx context.Context, sessionID, uid string) error {
	if err := d.validate(sessionID, uid); err != nil {
		return err
	}
	return d.notifications.Clear(ctx, sessionID, uid)
}

func (d *NotificationDispatcher) validate(sessionID, uid string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	return validateUID(uid)
}
