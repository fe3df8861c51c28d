package event

import (
	"board-lab/domain"
	"time"
)

type DomainEvent interface {
	SessionID() string
}

// MessageAppended is emitted once a chat message has been ordered by the store.
type MessageAppended struct {
	Session string
	Message domain.ChatMessage
	At      time.Time
}

func (m MessageAppended) SessionID() string {
	return m.Session
}

// SessionEnded is emitted when the host ends a session.
type SessionEnded struct {
	Session string
	HostID  string
	At      time.Time
}

func (s SessionEnded) SessionID() string {
	return s.Session
}
