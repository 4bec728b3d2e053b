package domain

import "time"

// Visibility controls whether a room shows up in public listings.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// LogKind classifies a log line for display.
type LogKind string

const (
	LogChat      LogKind = "chat"
	LogAction    LogKind = "action"
	LogNarrative LogKind = "narrative"
	LogSystem    LogKind = "system"
	LogCombat    LogKind = "combat"
)

// LogEntry is one line of the room's append-only narrative log.
type LogEntry struct {
	ID       string    `json:"id"`
	Kind     LogKind   `json:"kind"`
	AuthorID string    `json:"authorId,omitempty"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Room is the canonical state of a shared game room.
type Room struct {
	Code         string        `json:"code"`
	Ended        bool          `json:"ended"`
	Visibility   Visibility    `json:"visibility"`
	Log          []LogEntry    `json:"log"`
	Participants []Participant `json:"participants"`
	Combat       *CombatState  `json:"combat,omitempty"`
	Suggestions  []Suggestion  `json:"suggestions,omitempty"`
}

// Participant looks up a roster member by id.
func (r Room) Participant(id string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r Room) Clone() Room {
	out := r
	out.Log = append([]LogEntry(nil), r.Log...)
	out.Participants = append([]Participant(nil), r.Participants...)
	out.Suggestions = make([]Suggestion, len(r.Suggestions))
	for i, s := range r.Suggestions {
		out.Suggestions[i] = s.Clone()
	}
	out.Combat = r.Combat.Clone()
	return out
}
