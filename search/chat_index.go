// Package search keeps a full-text index of chat messages, one document per
// message, filtered by session at query time.
package search

import (
	"board-lab/domain"
	"board-lab/domain/event"
	"board-lab/store"
	"context"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
)

const (
	fieldSession  = "session"
	fieldSequence = "sequence"
	fieldSender   = "sender"
	fieldContent  = "content"
)

type ChatIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewChatIndex(writer *bluge.Writer, log *slog.Logger) *ChatIndex {
	return &ChatIndex{writer: writer, log: log}
}

// Consume indexes every appended message.
func (i *ChatIndex) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessageAppended)
	if !ok {
		return nil
	}
	return i.Index(evt.Session, evt.Message)
}

func (i *ChatIndex) Index(sessionID string, m domain.ChatMessage) error {
	doc := bluge.NewDocument(store.Join(sessionID, store.SeqKey(m.Sequence)))
	doc.AddField(bluge.NewKeywordField(fieldSession, sessionID))
	doc.AddField(bluge.NewNumericField(fieldSequence, float64(m.Sequence)).StoreValue())
	doc.AddField(bluge.NewKeywordField(fieldSender, m.SenderName).StoreValue())
	doc.AddField(bluge.NewTextField(fieldContent, m.Content).StoreValue().HighlightMatches())
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index chat message %d: %w", m.Sequence, err)
	}
	return nil
}

// Search returns the best matching messages of one session, best first.
func (i *ChatIndex) Search(ctx context.Context, sessionID, query string, limit int) ([]domain.ChatHit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(sessionID).SetField(fieldSession)).
		AddMust(bluge.NewMatchQuery(query).SetField(fieldContent))
	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var hits []domain.ChatHit
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := domain.ChatHit{Score: match.Score}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldSequence:
				if seq, decodeErr := bluge.DecodeNumericFloat64(value); decodeErr == nil {
					hit.Sequence = uint64(seq)
				}
			case fieldSender:
				hit.SenderName = string(value)
			case fieldContent:
				hit.Content = string(value)
			}
			return true
		})
		if err != nil {
			break
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	i.log.Debug("Chat search", "session_id", sessionID, "query", query, "hits", len(hits))
	return hits, nil
}
