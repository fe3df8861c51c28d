// Package domain contains core concepts of the whiteboard session layer.
// Types here are plain values and pure functions.
// No runtime, network, or storage logic should be added here.
package domain

import "time"

type SessionState string

const (
	SessionActive SessionState = "active"
	SessionEnded  SessionState = "ended"
)

// SessionMeta is the create-if-absent record of a session.
// It is written once by the first joiner and only its State changes afterwards.
type SessionMeta struct {
	ID        string       `json:"id"`
	HostID    string       `json:"hostId"`
	CreatedAt time.Time    `json:"createdAt"`
	State     SessionState `json:"state"`
}

func NewSessionMeta(id, hostID string, now time.Time) SessionMeta {
	return SessionMeta{
		ID:        id,
		HostID:    hostID,
		CreatedAt: now.UTC(),
		State:     SessionActive,
	}
}

func (m SessionMeta) Ended() bool {
	return m.State == SessionEnded
}

// Session is a point-in-time view of everything known about a session.
type Session struct {
	SessionMeta
	Participants map[string]Participant `json:"participants"`
	Canvas       CanvasState            `json:"canvas"`
}

// User identifies the caller of CreateOrJoin. Identity comes from the
// identity provider and is trusted as-is.
type User struct {
	ID          string `json:"id" validate:"required,max=128,excludesall=/"`
	DisplayName string `json:"displayName" validate:"required,max=64"`
	PhotoURL    string `json:"photoURL,omitempty" validate:"omitempty,url"`
}
