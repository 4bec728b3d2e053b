package client

import (
	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
)

// Effect tells the caller what to do after a message was applied.
type Effect struct {
	// Exit is set when the local participant was removed from the room.
	Exit bool
	// Resync is set when a rejection suggests the local view is stale.
	Resync bool
	// Ended is set when the message shows the room is over.
	Ended bool
}

// Synchronizer keeps a local copy of a room in step with the server. Full
// snapshots always win over incremental events and local predictions.
// It is not safe for concurrent use.
type Synchronizer struct {
	self       string
	room       domain.Room
	version    int
	optimistic bool
	ended      bool
}

func NewSynchronizer(self string) *Synchronizer {
	return &Synchronizer{self: self}
}

func (s *Synchronizer) Self() string { return s.self }

// Room returns a copy of the local room.
func (s *Synchronizer) Room() domain.Room { return s.room.Clone() }

func (s *Synchronizer) Combat() *domain.CombatState { return s.room.Combat.Clone() }

func (s *Synchronizer) Version() int { return s.version }

// Optimistic reports whether the combat state holds an unconfirmed local
// prediction.
func (s *Synchronizer) Optimistic() bool { return s.optimistic }

func (s *Synchronizer) Ended() bool { return s.ended }

// Participant returns the local participant's roster entry.
func (s *Synchronizer) Participant() (domain.Participant, bool) {
	return s.room.Participant(s.self)
}

// Apply folds one server message into the local state.
func (s *Synchronizer) Apply(msg protocol.ServerMessage) Effect {
	if s.ended {
		return Effect{}
	}

	switch m := msg.(type) {
	case protocol.RoomState:
		if m.Self != "" {
			s.self = m.Self
		}
		s.room = m.Room.Clone()
		s.version = m.Version
		s.optimistic = false
		s.ended = m.Room.Ended
	case protocol.CombatUpdate:
		s.room.Combat = m.Combat.Clone()
		s.version = m.Version
		s.optimistic = false
	case protocol.CombatEvent:
		s.applyEvent(m)
	case protocol.CombatResult:
		if m.TargetHP != nil {
			s.setHP(m.TargetID, *m.TargetHP)
		}
	case protocol.PlayerJoined:
		s.upsert(m.Participant)
	case protocol.PlayerLeft:
		s.remove(m.ParticipantID)
		if m.NewHostID != "" {
			s.setRole(m.NewHostID, domain.RoleHost)
		}
		if m.ParticipantID == s.self {
			return Effect{Exit: true}
		}
	case protocol.PlayerKicked:
		s.remove(m.ParticipantID)
		if m.ParticipantID == s.self {
			return Effect{Exit: true}
		}
	case protocol.GameEnded:
		s.room.Ended = true
		s.ended = true
		return Effect{Ended: true}
	case protocol.ActionSuggestion:
		s.dropSuggestion(m.Suggestion.ID)
		s.room.Suggestions = append(s.room.Suggestions, m.Suggestion.Clone())
	case protocol.SuggestionResolved:
		s.dropSuggestion(m.SuggestionID)
	case protocol.LogEntry:
		s.room.Log = append(s.room.Log, m.Entry)
	case protocol.Error:
		if m.Code == protocol.CodeRoomEnded {
			s.ended = true
			return Effect{Ended: true}
		}
		return Effect{Resync: m.Code.Stale()}
	}
	return Effect{}
}

// applyEvent gives immediate feedback until the combat_update that follows.
// Turn moves are applied only when the event's actor still holds the turn
// locally, so a prediction already made is not applied twice.
func (s *Synchronizer) applyEvent(e protocol.CombatEvent) {
	c := s.room.Combat
	switch e.Event {
	case protocol.EventCombatEnded:
		s.room.Combat = nil
		return
	case protocol.EventRoundStarted:
		if c != nil && e.Round > c.Round {
			c.Round = e.Round
		}
		return
	}
	if c == nil {
		return
	}

	switch e.Event {
	case protocol.EventTurnAdvanced, protocol.EventTurnPassed:
		if cur, ok := c.Current(); ok && cur.ActorID == e.ActorID {
			c.Advance()
		}
	case protocol.EventActionTaken:
		if e.Action == domain.ActionMove && e.Destination != nil {
			s.setPosition(e.ActorID, *e.Destination)
		}
		if cur, ok := c.Current(); ok && cur.ActorID == e.ActorID {
			c.Advance()
		}
	}
}

// PredictPass advances the local turn ahead of the server. It reports false
// when actorID does not hold the turn locally.
func (s *Synchronizer) PredictPass(actorID string) bool {
	cur, ok := s.room.Combat.Current()
	if !ok || cur.ActorID != actorID {
		return false
	}
	s.room.Combat.Advance()
	s.optimistic = true
	return true
}

// PredictMove places actorID at dest and ends its turn locally.
func (s *Synchronizer) PredictMove(actorID string, dest domain.Coord) bool {
	cur, ok := s.room.Combat.Current()
	if !ok || cur.ActorID != actorID {
		return false
	}
	s.setPosition(actorID, dest)
	s.room.Combat.Advance()
	s.optimistic = true
	return true
}

func (s *Synchronizer) setPosition(actorID string, dest domain.Coord) {
	if i := s.room.Combat.IndexOf(actorID); i >= 0 {
		s.room.Combat.Order[i].Position = &dest
	}
}

func (s *Synchronizer) setHP(actorID string, hp int) {
	if i := s.room.Combat.IndexOf(actorID); i >= 0 {
		s.room.Combat.Order[i].HP = &hp
	}
}

func (s *Synchronizer) upsert(p domain.Participant) {
	for i := range s.room.Participants {
		if s.room.Participants[i].ID == p.ID {
			s.room.Participants[i] = p
			return
		}
	}
	s.room.Participants = append(s.room.Participants, p)
}

func (s *Synchronizer) remove(id string) {
	out := s.room.Participants[:0]
	for _, p := range s.room.Participants {
		if p.ID != id {
			out = append(out, p)
		}
	}
	s.room.Participants = out
}

func (s *Synchronizer) setRole(id string, role domain.Role) {
	for i := range s.room.Participants {
		if s.room.Participants[i].ID == id {
			s.room.Participants[i].Role = role
		}
	}
}

func (s *Synchronizer) dropSuggestion(id string) {
	out := s.room.Suggestions[:0]
	for _, sg := range s.room.Suggestions {
		if sg.ID != id {
			out = append(out, sg)
		}
	}
	s.room.Suggestions = out
}
