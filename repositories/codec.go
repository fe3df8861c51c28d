package repositories

import (
	"board-lab/domain"
	"board-lab/store"
	"encoding/json"
)

func DecodeMeta(value []byte) (domain.SessionMeta, error) {
	var m domain.SessionMeta
	err := json.Unmarshal(value, &m)
	return m, err
}

func DecodeParticipant(value []byte) (domain.Participant, error) {
	var p domain.Participant
	err := json.Unmarshal(value, &p)
	return p, err
}

func DecodeSettings(value []byte) (domain.SettingsRecord, error) {
	var r domain.SettingsRecord
	err := json.Unmarshal(value, &r)
	return r, err
}

// DecodeElement turns a stored element into a canvas event. The element id
// is always the push key, whatever the stored document says.
func DecodeElement(kind domain.ElementKind, key string, value []byte) (domain.CanvasEvent, error) {
	switch kind {
	case domain.KindStroke:
		var s domain.Stroke
		if err := json.Unmarshal(value, &s); err != nil {
			return domain.CanvasEvent{}, err
		}
		s.ID = key
		return domain.CanvasEvent{Stroke: &s}, nil
	case domain.KindShape:
		var s domain.Shape
		if err := json.Unmarshal(value, &s); err != nil {
			return domain.CanvasEvent{}, err
		}
		s.ID = key
		return domain.CanvasEvent{Shape: &s}, nil
	default:
		var tb domain.TextBox
		if err := json.Unmarshal(value, &tb); err != nil {
			return domain.CanvasEvent{}, err
		}
		tb.ID = key
		return domain.CanvasEvent{TextBox: &tb}, nil
	}
}

// DecodeChat restores the store-assigned sequence from the push key.
func DecodeChat(key string, value []byte) (domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := json.Unmarshal(value, &m); err != nil {
		return m, err
	}
	m.Sequence, _ = store.ParseSeqKey(key)
	return m, nil
}

func DecodeNotification(key string, value []byte) (domain.Notification, error) {
	var n domain.Notification
	if err := json.Unmarshal(value, &n); err != nil {
		return n, err
	}
	n.ID = key
	return n, nil
}
