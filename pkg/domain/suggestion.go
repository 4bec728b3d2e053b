package domain

import "time"

// Suggestion is a candidate action awaiting a participant's confirmation.
type Suggestion struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participantId"`
	ActorID       string    `json:"actorId,omitempty"`
	Text          string    `json:"text"`
	Candidates    []Action  `json:"candidates"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (s Suggestion) Clone() Suggestion {
	s.Candidates = append([]Action(nil), s.Candidates...)
	return s
}
