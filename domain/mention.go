package domain

type MentionKind string

const (
	MentionUser     MentionKind = "user"
	MentionEveryone MentionKind = "everyone"
	MentionHere     MentionKind = "here"
)

// MentionToken is an @word found in chat content, without the '@'.
// Tokens are resolved to recipients at delivery time, never at parse time.
type MentionToken struct {
	Kind MentionKind `json:"kind"`
	Text string      `json:"text"`
}

// Mention is a token together with the uids it resolved to.
type Mention struct {
	Token   MentionToken `json:"token"`
	Targets []string     `json:"targets"`
}
