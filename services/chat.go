package services

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/domain/event"
	"board-lab/repositories"
	"board-lab/runtime"
	"board-lab/search"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
)

// ChatChannel appends chat messages and streams them in store order.
type ChatChannel struct {
	log       *slog.Logger
	sessions  repositories.SessionRepository
	chat      repositories.ChatRepository
	resolver  contract.MentionResolver
	censor    contract.Censor
	notifier  *NotificationDispatcher
	index     *search.ChatIndex
	publisher contract.EventPublisher
	hub       *runtime.Hub
	now       func() time.Time
}

func NewChatChannel(log *slog.Logger, store contract.Store, resolver contract.MentionResolver, censor contract.Censor,
	notifier *NotificationDispatcher, index *search.ChatIndex, publisher contract.EventPublisher, hub *runtime.Hub) *ChatChannel {
	return &ChatChannel{
		log:       log,
		sessions:  repositories.NewSessionRepository(store, log),
		chat:      repositories.NewChatRepository(store, log),
		resolver:  resolver,
		censor:    censor,
		notifier:  notifier,
		index:     index,
		publisher: publisher,
		hub:       hub,
		now:       time.Now,
	}
}

// Append stores the draft and returns the sequence the store gave it.
// Mentions are dispatched before Append returns. When that fails the message
// is already stored: the sequence is returned along with the error.
func (c *ChatChannel) Append(ctx context.Context, sessionID string, draft domain.ChatDraft) (uint64, error) {
	if err := validateDraft(sessionID, draft); err != nil {
		return 0, err
	}
	if _, err := activeMeta(ctx, c.sessions, sessionID); err != nil {
		return 0, err
	}

	content, found := c.censor.Censor(draft.Content)
	if len(found) > 0 {
		c.log.Debug("Chat message censored", "session_id", sessionID, "uid", draft.SenderID, "words", len(found))
	}
	msg := domain.ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   draft.SenderID,
		SenderName: draft.SenderName,
		Content:    content,
		Mentions:   c.resolver.Parse(content),
		Timestamp:  draft.Timestamp,
		Lang:       detectLang(draft.Content),
		Censored:   len(found) > 0,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = c.now().UTC()
	}

	seq, err := c.chat.Append(ctx, sessionID, msg)
	if err != nil {
		return 0, fmt.Errorf("append chat to %s: %w", sessionID, err)
	}
	msg.Sequence = seq
	if err := c.notifier.Dispatch(ctx, sessionID, msg); err != nil {
		return seq, fmt.Errorf("dispatch mentions of %s #%d: %w", sessionID, seq, err)
	}
	c.publisher.Publish(event.MessageAppended{Session: sessionID, Message: msg, At: c.now().UTC()})
	return seq, nil
}

// Read streams the history in sequence order, then every new message.
func (c *ChatChannel) Read(ctx context.Context, sessionID string) (<-chan domain.ChatMessage, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	sub, err := c.hub.Subscribe(ctx, sessionID, runtime.TopicChat, "")
	if err != nil {
		return nil, err
	}
	return stream(ctx, sub, func(e runtime.Event) (domain.ChatMessage, bool) {
		if e.Chat == nil {
			return domain.ChatMessage{}, false
		}
		return *e.Chat, true
	}), nil
}

// History reads the messages appended so far, in sequence order.
func (c *ChatChannel) History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	if _, err := loadMeta(ctx, c.sessions, sessionID); err != nil {
		return nil, err
	}
	return c.chat.History(ctx, sessionID)
}

// Search runs a full-text query over the session's messages.
func (c *ChatChannel) Search(ctx context.Context, sessionID, query string, limit int) ([]domain.ChatHit, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, nil
	}
	return c.index.Search(ctx, sessionID, query, max(limit, 1))
}

func detectLang(content string) string {
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
