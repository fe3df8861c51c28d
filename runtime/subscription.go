package runtime

import (
	"board-lab/domain"
	"sync/atomic"
)

type Topic int

const (
	TopicCanvas Topic = iota
	TopicRoster
	TopicChat
	TopicNotifications
)

func (t Topic) String() string {
	switch t {
	case TopicCanvas:
		return "canvas"
	case TopicRoster:
		return "roster"
	case TopicChat:
		return "chat"
	case TopicNotifications:
		return "notifications"
	default:
		return "unknown"
	}
}

// Event is one delivery to a subscriber. Exactly one field is set, the one
// matching the subscription topic.
type Event struct {
	Canvas        *domain.CanvasEvent
	Roster        []domain.RosterEntry
	Chat          *domain.ChatMessage
	Notifications []domain.Notification
}

// Subscription is a live stream of one topic of one session.
// Events is closed when the subscription ends: on Close, when its context is
// done, when the session ends, or when the hub stops.
type Subscription struct {
	id        uint64
	SessionID string
	Topic     Topic
	// Recipient selects the notification queue of TopicNotifications.
	Recipient string
	events    chan Event
	closed    atomic.Bool
	done      chan struct{}
	hub       *Hub
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close releases the subscription. It is idempotent.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	s.hub.unsubscribe(s)
}
