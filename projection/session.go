// Package projection builds the in-memory view of a session from store changes.
// Handles ordering, deduplication, and default values.
// Does not emit events or talk to the store directly.
package projection

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/repositories"
	"cmp"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// Delta tells which parts of the view a change touched.
type Delta struct {
	Meta         bool
	Participants bool
	Canvas       *domain.CanvasEvent
	Chat         *domain.ChatMessage
	// Recipient whose notification queue changed.
	Recipient string
}

func (d Delta) Empty() bool {
	return !d.Meta && !d.Participants && d.Canvas == nil && d.Chat == nil && d.Recipient == ""
}

// Session holds a local view of one session.
// It is not safe for concurrent use, its owner serializes access.
type Session struct {
	ID            string
	log           *slog.Logger
	meta          domain.SessionMeta
	exists        bool
	participants  map[string]domain.Participant
	canvas        domain.CanvasState
	chat          []domain.ChatMessage
	notifications map[string]map[string]domain.Notification
}

func NewSession(id string, log *slog.Logger) *Session {
	return &Session{
		ID:            id,
		log:           log,
		participants:  make(map[string]domain.Participant),
		canvas:        domain.NewCanvasState(),
		notifications: make(map[string]map[string]domain.Notification),
	}
}

// Apply folds one store change into the view. Unreadable values are logged
// and ignored so one bad document never stalls a session.
func (s *Session) Apply(c contract.Change) Delta {
	ref := repositories.ParseRef(s.ID, c.Path)
	removed := c.Kind == contract.Removed
	switch ref.Area {
	case repositories.AreaMeta:
		return s.applyMeta(c, removed)
	case repositories.AreaParticipant:
		return s.applyParticipant(ref, c, removed)
	case repositories.AreaElement:
		return s.applyElement(ref, c, removed)
	case repositories.AreaSettings:
		return s.applySettings(c, removed)
	case repositories.AreaChat:
		return s.applyChat(ref, c, removed)
	case repositories.AreaNotification:
		return s.applyNotification(ref, c, removed)
	default:
		s.log.Debug("Ignoring change outside the session layout", "path", c.Path)
		return Delta{}
	}
}

func (s *Session) applyMeta(c contract.Change, removed bool) Delta {
	if removed {
		s.meta, s.exists = domain.SessionMeta{}, false
		return Delta{Meta: true}
	}
	m, err := repositories.DecodeMeta(c.Value)
	if err != nil {
		s.log.Warn("Unreadable session meta", "session_id", s.ID, "error", err)
		return Delta{}
	}
	s.meta, s.exists = m, true
	return Delta{Meta: true}
}

func (s *Session) applyParticipant(ref repositories.Ref, c contract.Change, removed bool) Delta {
	if removed {
		if _, ok := s.participants[ref.Key]; !ok {
			return Delta{}
		}
		delete(s.participants, ref.Key)
		return Delta{Participants: true}
	}
	p, err := repositories.DecodeParticipant(c.Value)
	if err != nil {
		s.log.Warn("Unreadable participant", "session_id", s.ID, "uid", ref.Key, "error", err)
		return Delta{}
	}
	p.ID = ref.Key
	if old, ok := s.participants[ref.Key]; ok && old == p {
		return Delta{}
	}
	s.participants[ref.Key] = p
	return Delta{Participants: true}
}

func (s *Session) applyElement(ref repositories.Ref, c contract.Change, removed bool) Delta {
	if removed {
		s.log.Debug("Ignoring removal of an append-only element", "path", c.Path)
		return Delta{}
	}
	evt, err := repositories.DecodeElement(ref.Kind, ref.Key, c.Value)
	if err != nil {
		s.log.Warn("Unreadable canvas element", "path", c.Path, "error", err)
		return Delta{}
	}
	before := s.canvas.Len()
	s.canvas = s.canvas.Apply(evt)
	if s.canvas.Len() == before {
		return Delta{}
	}
	return Delta{Canvas: &evt}
}

func (s *Session) applySettings(c contract.Change, removed bool) Delta {
	settings := domain.DefaultSettings()
	if !removed {
		record, err := repositories.DecodeSettings(c.Value)
		if err != nil {
			s.log.Warn("Unreadable settings record", "session_id", s.ID, "error", err)
			return Delta{}
		}
		settings = record.Settings()
	}
	if settings == s.canvas.Settings {
		return Delta{}
	}
	s.canvas.Settings = settings
	return Delta{Canvas: &domain.CanvasEvent{Settings: &settings}}
}

func (s *Session) applyChat(ref repositories.Ref, c contract.Change, removed bool) Delta {
	if removed {
		return Delta{}
	}
	m, err := repositories.DecodeChat(ref.Key, c.Value)
	if err != nil {
		s.log.Warn("Unreadable chat message", "path", c.Path, "error", err)
		return Delta{}
	}
	i, found := slices.BinarySearchFunc(s.chat, m.Sequence, func(x domain.ChatMessage, seq uint64) int {
		return cmp.Compare(x.Sequence, seq)
	})
	if found {
		return Delta{}
	}
	s.chat = slices.Insert(s.chat, i, m)
	return Delta{Chat: &m}
}

func (s *Session) applyNotification(ref repositories.Ref, c contract.Change, removed bool) Delta {
	queue := s.notifications[ref.Recipient]
	if removed {
		if _, ok := queue[ref.Key]; !ok {
			return Delta{}
		}
		delete(queue, ref.Key)
		return Delta{Recipient: ref.Recipient}
	}
	n, err := repositories.DecodeNotification(ref.Key, c.Value)
	if err != nil {
		s.log.Warn("Unreadable notification", "path", c.Path, "error", err)
		return Delta{}
	}
	if queue == nil {
		queue = make(map[string]domain.Notification)
		s.notifications[ref.Recipient] = queue
	}
	queue[ref.Key] = n
	return Delta{Recipient: ref.Recipient}
}

func (s *Session) Exists() bool {
	return s.exists
}

func (s *Session) Meta() domain.SessionMeta {
	return s.meta
}

func (s *Session) Canvas() domain.CanvasState {
	return s.canvas.Clone()
}

func (s *Session) Participants() map[string]domain.Participant {
	return maps.Clone(s.participants)
}

func (s *Session) Roster(now time.Time) []domain.RosterEntry {
	return domain.Roster(s.participants, now)
}

// ChatAfter returns the messages with a sequence greater than seq, in order.
func (s *Session) ChatAfter(seq uint64) []domain.ChatMessage {
	i, found := slices.BinarySearchFunc(s.chat, seq, func(x domain.ChatMessage, seq uint64) int {
		return cmp.Compare(x.Sequence, seq)
	})
	if found {
		i++
	}
	return slices.Clone(s.chat[i:])
}

// Pending is the un-acked queue of uid, newest first.
func (s *Session) Pending(uid string) []domain.Notification {
	return domain.PendingNewestFirst(slices.Collect(maps.Values(s.notifications[uid])))
}

func (s *Session) Snapshot() domain.Session {
	meta := s.meta
	if meta.ID == "" {
		meta.ID = s.ID
	}
	return domain.Session{
		SessionMeta:  meta,
		Participants: s.Participants(),
		Canvas:       s.Canvas(),
	}
}
