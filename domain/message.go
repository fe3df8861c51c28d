package domain

import (
	"time"
)

// ChatDraft is a message as submitted by a client, before the store orders it.
type ChatDraft struct {
	SenderID   string    `json:"senderId" validate:"required,max=128"`
	SenderName string    `json:"senderName" validate:"required,max=64"`
	Content    string    `json:"content" validate:"required,max=4000"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChatMessage is immutable once appended.
// Sequence is assigned by the store and is the only ordering key;
// Timestamp comes from the client clock and is informational.
type ChatMessage struct {
	ID         string         `json:"id"`
	Sequence   uint64         `json:"sequence,omitempty"`
	SenderID   string         `json:"senderId"`
	SenderName string         `json:"senderName"`
	Content    string         `json:"content"`
	Mentions   []MentionToken `json:"mentions,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Lang       string         `json:"lang,omitempty"`
	Censored   bool           `json:"censored,omitempty"`
}

// ChatHit is one full-text search result.
type ChatHit struct {
	Sequence   uint64  `json:"sequence"`
	SenderName string  `json:"senderName"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}
