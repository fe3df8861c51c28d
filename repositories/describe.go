package repositories

import (
	"fmt"
	"strings"
)

func (a Area) String() string {
	switch a {
	case AreaMeta:
		return "META"
	case AreaParticipant:
		return "PARTICIPANT"
	case AreaElement:
		return "ELEMENT"
	case AreaSettings:
		return "SETTINGS"
	case AreaChat:
		return "CHAT"
	case AreaNotification:
		return "NOTIFICATION"
	default:
		return "RAW"
	}
}

// Description is a stored document rendered for inspection tools.
type Description struct {
	Session string
	Area    Area
	Detail  string
}

// Describe summarizes the document stored at path. Paths outside the
// session layout, and unreadable documents, are described by their size.
func Describe(path string, value []byte) Description {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 3 || parts[0] != root {
		return Description{Detail: fmt.Sprintf("Size: %d bytes", len(value))}
	}
	d := Description{Session: parts[1]}
	ref := ParseRef(d.Session, path)
	d.Area = ref.Area
	d.Detail = detail(ref, value)
	if d.Detail == "" {
		d.Detail = fmt.Sprintf("Size: %d bytes", len(value))
	}
	return d
}

func detail(ref Ref, value []byte) string {
	switch ref.Area {
	case AreaMeta:
		if m, err := DecodeMeta(value); err == nil {
			return fmt.Sprintf("host=%s state=%s created=%s", m.HostID, m.State, m.CreatedAt.Format("15:04:05"))
		}
	case AreaParticipant:
		if p, err := DecodeParticipant(value); err == nil {
			return fmt.Sprintf("%s last active %s", p.DisplayName, p.LastActiveAt.Format("15:04:05"))
		}
	case AreaElement:
		if e, err := DecodeElement(ref.Kind, ref.Key, value); err == nil {
			switch {
			case e.Stroke != nil:
				return fmt.Sprintf("stroke z=%d by %s, %d points", e.Stroke.Z, e.Stroke.AuthorID, len(e.Stroke.Points))
			case e.Shape != nil:
				return fmt.Sprintf("%s z=%d by %s", e.Shape.Kind, e.Shape.Z, e.Shape.AuthorID)
			case e.TextBox != nil:
				return fmt.Sprintf("text z=%d by %s: %s", e.TextBox.Z, e.TextBox.AuthorID, truncate(e.TextBox.Text))
			}
		}
	case AreaSettings:
		if r, err := DecodeSettings(value); err == nil {
			s := r.Settings()
			return fmt.Sprintf("%s %s width=%g rev=%d", s.Tool, s.Color, s.LineWidth, r.MaxRev())
		}
	case AreaChat:
		if m, err := DecodeChat(ref.Key, value); err == nil {
			return fmt.Sprintf("#%d %s: %s", m.Sequence, m.SenderName, truncate(m.Content))
		}
	case AreaNotification:
		if n, err := DecodeNotification(ref.Key, value); err == nil {
			return fmt.Sprintf("to %s from %s acked=%t", n.RecipientID, n.SenderName, n.Acked)
		}
	}
	return ""
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= 60 {
		return s
	}
	return string(r[:57]) + "..."
}
