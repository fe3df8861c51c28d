package search

import (
	"board-lab/domain"
	"board-lab/domain/event"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) *ChatIndex {
	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = blugeWriter.Close() })
	return NewChatIndex(blugeWriter, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestChatIndex_Search(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := newIndex(t)

	// Given messages in two sessions
	messages := []struct {
		session string
		msg     domain.ChatMessage
	}{
		{"s1", domain.ChatMessage{Sequence: 1, SenderName: "alice", Content: "the roadmap needs a diagram"}},
		{"s1", domain.ChatMessage{Sequence: 2, SenderName: "bob", Content: "lunch at noon"}},
		{"s2", domain.ChatMessage{Sequence: 1, SenderName: "carol", Content: "another roadmap elsewhere"}},
	}
	for _, m := range messages {
		req.NoError(index.Consume(ctx, event.MessageAppended{Session: m.session, Message: m.msg, At: time.Now()}))
	}

	// When searching s1
	hits, err := index.Search(ctx, "s1", "roadmap", 10)

	// Then only the matching message of s1 is returned
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(uint64(1), hits[0].Sequence)
	req.Equal("alice", hits[0].SenderName)
	req.Equal("the roadmap needs a diagram", hits[0].Content)
	req.Greater(hits[0].Score, 0.0)
}

func TestChatIndex_NoMatch(t *testing.T) {
	req := require.New(t)
	index := newIndex(t)
	req.NoError(index.Index("s1", domain.ChatMessage{Sequence: 1, SenderName: "alice", Content: "hello"}))

	hits, err := index.Search(context.Background(), "s1", "goodbye", 10)

	req.NoError(err)
	req.Empty(hits)
}

func TestChatIndex_IgnoresOtherEvents(t *testing.T) {
	req := require.New(t)
	index := newIndex(t)

	err := index.Consume(context.Background(), event.SessionEnded{Session: "s1", HostID: "u1", At: time.Now()})

	req.NoError(err)
}
