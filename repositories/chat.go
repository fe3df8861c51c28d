package repositories

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/store"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

type ChatRepository struct {
	store contract.Store
	log   *slog.Logger
}

func NewChatRepository(store contract.Store, log *slog.Logger) ChatRepository {
	return ChatRepository{store: store, log: log}
}

// Append pushes the message. The push key is the message sequence.
func (r ChatRepository) Append(ctx context.Context, sessionID string, msg domain.ChatMessage) (uint64, error) {
	msg.Sequence = 0
	b, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	key, err := r.store.Push(ctx, ChatParent(sessionID), b)
	if err != nil {
		return 0, err
	}
	seq, ok := store.ParseSeqKey(key)
	if !ok {
		return 0, fmt.Errorf("unexpected chat key %q", key)
	}
	return seq, nil
}

// History reads every message of the session, ordered by sequence.
func (r ChatRepository) History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	puts, err := store.Snapshot(ctx, r.store, ChatParent(sessionID)+"/")
	if err != nil {
		return nil, err
	}
	messages := make([]domain.ChatMessage, 0, len(puts))
	for _, c := range puts {
		ref := ParseRef(sessionID, c.Path)
		m, err := DecodeChat(ref.Key, c.Value)
		if err != nil {
			r.log.Warn("Skipping unreadable chat message", "path", c.Path, "error", err)
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}
