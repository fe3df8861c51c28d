package domain

import (
	"slices"
	"strings"
	"time"
)

// PresenceWindow is the only timeout of the session layer.
// A participant is online while its last heartbeat is strictly younger than it.
const PresenceWindow = 30 * time.Second

type Status string

const (
	StatusOnline Status = "online"
	StatusAway   Status = "away"
)

// Participant is keyed uniquely by ID within a session.
// It is never removed because of staleness, only by an explicit leave.
type Participant struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	PhotoURL     string    `json:"photoURL,omitempty"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	JoinedAt     time.Time `json:"joinedAt"`
	IsHost       bool      `json:"isHost"`
}

// Classify derives liveness from the last heartbeat. It is never stored.
func Classify(p Participant, now time.Time) Status {
	if now.Sub(p.LastActiveAt) < PresenceWindow {
		return StatusOnline
	}
	return StatusAway
}

type RosterEntry struct {
	Participant
	Status Status `json:"status"`
}

// Roster classifies every participant at now and orders them: online first,
// then away, each group alphabetically by display name.
func Roster(participants map[string]Participant, now time.Time) []RosterEntry {
	roster := make([]RosterEntry, 0, len(participants))
	for _, p := range participants {
		roster = append(roster, RosterEntry{Participant: p, Status: Classify(p, now)})
	}
	slices.SortFunc(roster, compareRosterEntries)
	return roster
}

func compareRosterEntries(a, b RosterEntry) int {
	if a.Status != b.Status {
		if a.Status == StatusOnline {
			return -1
		}
		return 1
	}
	if c := strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)); c != 0 {
		return c
	}
	if c := strings.Compare(a.DisplayName, b.DisplayName); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SameClassification reports whether two rosters list the same participants
// with the same statuses in the same order.
func SameClassification(a, b []RosterEntry) bool {
	return slices.EqualFunc(a, b, func(x, y RosterEntry) bool {
		return x.ID == y.ID && x.Status == y.Status
	})
}
