package domain

import (
	"slices"
	"strings"
	"time"
)

// Notification lives in its recipient's queue until it is acked and cleared.
type Notification struct {
	ID          string    `json:"id,omitempty"`
	SessionID   string    `json:"sessionId"`
	RecipientID string    `json:"recipientId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Message     string    `json:"message"`
	MessageSeq  uint64    `json:"messageSeq"`
	Timestamp   time.Time `json:"timestamp"`
	Acked       bool      `json:"acked"`
}

// PendingNewestFirst keeps un-acked notifications, newest first.
// IDs are arrival-ordered store keys, so id order is arrival order.
func PendingNewestFirst(all []Notification) []Notification {
	pending := make([]Notification, 0, len(all))
	for _, n := range all {
		if !n.Acked {
			pending = append(pending, n)
		}
	}
	slices.SortFunc(pending, func(a, b Notification) int {
		return strings.Compare(b.ID, a.ID)
	})
	return pending
}
