package repositories

import (
	"board-lab/domain"
	"board-lab/store"
	"strings"
)

const root = "sessions"

func SessionPrefix(sessionID string) string { return store.Prefix(root, sessionID) }
func MetaPath(sessionID string) string      { return store.Join(root, sessionID, "meta") }
func SettingsPath(sessionID string) string  { return store.Join(root, sessionID, "canvas", "settings") }
func ChatParent(sessionID string) string    { return store.Join(root, sessionID, "chat") }

func ParticipantPath(sessionID, uid string) string {
	return store.Join(root, sessionID, "participants", uid)
}

func ElementParent(sessionID string, kind domain.ElementKind) string {
	return store.Join(root, sessionID, "canvas", string(kind))
}

func NotificationParent(sessionID, uid string) string {
	return store.Join(root, sessionID, "notifications", uid)
}

func NotificationPath(sessionID, uid, id string) string {
	return store.Join(NotificationParent(sessionID, uid), id)
}

type Area int

const (
	AreaUnknown Area = iota
	AreaMeta
	AreaParticipant
	AreaElement
	AreaSettings
	AreaChat
	AreaNotification
)

// Ref locates a store path inside the session layout.
type Ref struct {
	Area      Area
	Kind      domain.ElementKind
	Key       string
	Recipient string
}

// ParseRef classifies a path belonging to sessionID.
func ParseRef(sessionID, path string) Ref {
	rel, ok := strings.CutPrefix(path, SessionPrefix(sessionID))
	if !ok {
		return Ref{}
	}
	parts := strings.Split(rel, "/")
	switch {
	case len(parts) == 1 && parts[0] == "meta":
		return Ref{Area: AreaMeta}
	case len(parts) == 2 && parts[0] == "participants":
		return Ref{Area: AreaParticipant, Key: parts[1]}
	case len(parts) == 2 && parts[0] == "chat":
		return Ref{Area: AreaChat, Key: parts[1]}
	case len(parts) == 2 && parts[0] == "canvas" && parts[1] == "settings":
		return Ref{Area: AreaSettings}
	case len(parts) == 3 && parts[0] == "canvas":
		switch kind := domain.ElementKind(parts[1]); kind {
		case domain.KindStroke, domain.KindShape, domain.KindTextBox:
			return Ref{Area: AreaElement, Kind: kind, Key: parts[2]}
		}
	case len(parts) == 3 && parts[0] == "notifications":
		return Ref{Area: AreaNotification, Recipient: parts[1], Key: parts[2]}
	}
	return Ref{}
}
