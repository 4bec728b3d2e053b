package engine

import (
	"errors"
	"slices"

	"github.com/DoyleJ11/gameroom/pkg/domain"
)

var ErrNotInCombat = errors.New("not in combat")
var ErrAlreadyInCombat = errors.New("combat already in progress")
var ErrNotActor = errors.New("not actor")
var ErrNotAuthorized = errors.New("not authorized")
var ErrNoCombatants = errors.New("no combatants")
var ErrDuplicateActor = errors.New("duplicate actor in initiative")
var ErrInvalidHold = errors.New("invalid hold")
var ErrNotHeld = errors.New("actor is not holding")
var ErrInvalidAction = errors.New("invalid action")
var ErrUnsupportedCommand = errors.New("unsupported command")

type CommandType string

const (
	CmdStartCombat CommandType = "StartCombat"
	CmdNextTurn    CommandType = "NextTurn"
	CmdPassTurn    CommandType = "PassTurn"
	CmdHoldTurn    CommandType = "HoldTurn"
	CmdReleaseHold CommandType = "ReleaseHold"
	CmdTakeAction  CommandType = "TakeAction"
	CmdEndCombat   CommandType = "EndCombat"
)

/*
	CmdStartCombat  -> EvtCombatStarted
	CmdNextTurn     -> EvtTurnAdvanced [-> EvtHoldReleased...] [-> EvtRoundStarted]
	CmdPassTurn     -> EvtTurnPassed   [-> EvtHoldReleased...] [-> EvtRoundStarted]
	CmdTakeAction   -> EvtActionTaken  [-> EvtHoldReleased...] [-> EvtRoundStarted]
	CmdHoldTurn     -> EvtTurnHeld [-> EvtRoundStarted]
	CmdReleaseHold  -> EvtHoldReleased
	CmdEndCombat    -> EvtCombatEnded
*/

// Requester is whoever issued a command: the host, or a participant
// controlling ActorID.
type Requester struct {
	ParticipantID string
	ActorID       string
	Host          bool
}

type Command struct {
	Type    CommandType
	By      Requester
	ActorID string

	// CmdStartCombat: rolled entries, see RollInitiative.
	Entries []domain.InitiativeEntry

	// CmdHoldTurn
	HoldType       domain.HoldType
	Trigger        string
	TriggerActorID string

	// CmdTakeAction
	Action domain.Action
}

type EventType string

const (
	EvtCombatStarted EventType = "CombatStarted"
	EvtTurnAdvanced  EventType = "TurnAdvanced"
	EvtTurnPassed    EventType = "TurnPassed"
	EvtTurnHeld      EventType = "TurnHeld"
	EvtHoldReleased  EventType = "HoldReleased"
	EvtActionTaken   EventType = "ActionTaken"
	EvtRoundStarted  EventType = "RoundStarted"
	EvtCombatEnded   EventType = "CombatEnded"
)

type Event struct {
	Type     EventType
	ActorID  string
	Action   *domain.Action
	HoldType domain.HoldType
	Round    int
}

// Apply validates cmd against s and returns the events it produced and the
// resulting state. s is never mutated; a nil result state means combat is
// over.
func Apply(s *domain.CombatState, cmd Command) ([]Event, *domain.CombatState, error) {
	if cmd.Type == CmdStartCombat {
		return start(s, cmd)
	}
	if s == nil || !s.Active || len(s.Order) == 0 {
		return nil, s, ErrNotInCombat
	}

	// pass and hold can arrive as structured actions
	if cmd.Type == CmdTakeAction {
		switch cmd.Action.Kind {
		case domain.ActionPass:
			cmd.Type = CmdPassTurn
		case domain.ActionHold:
			cmd.Type = CmdHoldTurn
			cmd.HoldType = cmd.Action.HoldType
			cmd.Trigger = cmd.Action.Trigger
		}
	}

	next := s.Clone()

	switch cmd.Type {
	case CmdNextTurn:
		cur, err := actingEntry(s, cmd)
		if err != nil {
			return nil, s, err
		}
		events := []Event{{Type: EvtTurnAdvanced, ActorID: cur.ActorID}}
		return advance(next, cur.ActorID, events), next, nil

	case CmdPassTurn:
		cur, err := actingEntry(s, cmd)
		if err != nil {
			return nil, s, err
		}
		events := []Event{{Type: EvtTurnPassed, ActorID: cur.ActorID}}
		return advance(next, cur.ActorID, events), next, nil

	case CmdTakeAction:
		if !cmd.Action.Kind.Valid() {
			return nil, s, ErrInvalidAction
		}
		cur, err := actingEntry(s, cmd)
		if err != nil {
			return nil, s, err
		}
		action := cmd.Action
		if action.Kind == domain.ActionMove && action.Destination != nil {
			dest := *action.Destination
			next.Order[next.Index].Position = &dest
		}
		events := []Event{{Type: EvtActionTaken, ActorID: cur.ActorID, Action: &action}}
		return advance(next, cur.ActorID, events), next, nil

	case CmdHoldTurn:
		cur, err := actingEntry(s, cmd)
		if err != nil {
			return nil, s, err
		}
		switch cmd.HoldType {
		case domain.HoldEnd:
			return holdToEnd(next, cur), next, nil
		case domain.HoldUntil:
			events, err := park(next, cur, cmd)
			if err != nil {
				return nil, s, err
			}
			return events, next, nil
		default:
			return nil, s, ErrInvalidHold
		}

	case CmdReleaseHold:
		if !cmd.By.Host && cmd.By.ActorID != cmd.ActorID {
			return nil, s, ErrNotAuthorized
		}
		i := next.HeldIndex(cmd.ActorID)
		if i < 0 {
			return nil, s, ErrNotHeld
		}
		held := next.Held[i]
		next.Held = slices.Delete(next.Held, i, i+1)
		next.Order = slices.Insert(next.Order, next.Index, held.Entry)
		return []Event{{Type: EvtHoldReleased, ActorID: cmd.ActorID}}, next, nil

	case CmdEndCombat:
		if err := authorize(s, cmd.By); err != nil {
			return nil, s, err
		}
		return []Event{{Type: EvtCombatEnded, Round: s.Round}}, nil, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func start(s *domain.CombatState, cmd Command) ([]Event, *domain.CombatState, error) {
	if s != nil && s.Active {
		return nil, s, ErrAlreadyInCombat
	}
	if !cmd.By.Host {
		return nil, s, ErrNotAuthorized
	}
	if len(cmd.Entries) == 0 {
		return nil, s, ErrNoCombatants
	}

	seen := make(map[string]bool, len(cmd.Entries))
	order := make([]domain.InitiativeEntry, len(cmd.Entries))
	for i, e := range cmd.Entries {
		if e.ActorID == "" || seen[e.ActorID] {
			return nil, s, ErrDuplicateActor
		}
		seen[e.ActorID] = true
		order[i] = e
	}
	SortInitiative(order)

	next := &domain.CombatState{Active: true, Order: order, Index: 0, Round: 1}
	return []Event{{Type: EvtCombatStarted, Round: 1}}, next, nil
}

// actingEntry resolves the entry a turn command applies to. Naming an actor
// other than the current one is ErrNotActor; acting for an entry you do not
// control is ErrNotAuthorized.
func actingEntry(s *domain.CombatState, cmd Command) (domain.InitiativeEntry, error) {
	cur, ok := s.Current()
	if !ok {
		return domain.InitiativeEntry{}, ErrNotInCombat
	}
	if cmd.ActorID != "" && cmd.ActorID != cur.ActorID {
		return domain.InitiativeEntry{}, ErrNotActor
	}
	if err := authorize(s, cmd.By); err != nil {
		return domain.InitiativeEntry{}, err
	}
	return cur, nil
}

func authorize(s *domain.CombatState, by Requester) error {
	if by.Host {
		return nil
	}
	cur, ok := s.Current()
	if !ok || by.ActorID == "" || by.ActorID != cur.ActorID {
		return ErrNotAuthorized
	}
	return nil
}

// advance ends finished's turn. Entries parked until finished acts re-enter
// directly after it, in the order they were parked.
func advance(c *domain.CombatState, finished string, events []Event) []Event {
	var released []domain.InitiativeEntry
	kept := c.Held[:0]
	for _, h := range c.Held {
		if h.TriggerActorID != "" && h.TriggerActorID == finished {
			released = append(released, h.Entry)
			continue
		}
		kept = append(kept, h)
	}
	if len(kept) == 0 {
		kept = nil
	}
	c.Held = kept

	if len(released) > 0 {
		c.Order = slices.Insert(c.Order, c.Index+1, released...)
		for _, e := range released {
			events = append(events, Event{Type: EvtHoldReleased, ActorID: e.ActorID})
		}
	}

	if c.Advance() {
		events = append(events, Event{Type: EvtRoundStarted, Round: c.Round})
	}
	return events
}

// holdToEnd moves the current entry behind everyone still to act this pass.
// The pointer then already names the next actor. A holder that is last in
// the pass has nobody to wait for, so the turn simply advances.
func holdToEnd(c *domain.CombatState, cur domain.InitiativeEntry) []Event {
	events := []Event{{Type: EvtTurnHeld, ActorID: cur.ActorID, HoldType: domain.HoldEnd}}
	i := c.Index
	if i == len(c.Order)-1 {
		return advance(c, cur.ActorID, events)
	}
	entry := c.Order[i]
	c.Order = append(slices.Delete(c.Order, i, i+1), entry)
	return events
}

// park takes the current entry out of the order until it is released.
func park(c *domain.CombatState, cur domain.InitiativeEntry, cmd Command) ([]Event, error) {
	if len(c.Order) < 2 {
		return nil, ErrInvalidHold
	}
	if cmd.TriggerActorID != "" {
		if cmd.TriggerActorID == cur.ActorID || c.IndexOf(cmd.TriggerActorID) < 0 {
			return nil, ErrInvalidHold
		}
	}

	i := c.Index
	entry := c.Order[i]
	c.Order = slices.Delete(c.Order, i, i+1)
	c.Held = append(c.Held, domain.HeldEntry{
		Entry:          entry,
		Trigger:        cmd.Trigger,
		TriggerActorID: cmd.TriggerActorID,
	})

	events := []Event{{Type: EvtTurnHeld, ActorID: cur.ActorID, HoldType: domain.HoldUntil}}
	if c.Index >= len(c.Order) {
		c.Index = 0
		c.Round++
		events = append(events, Event{Type: EvtRoundStarted, Round: c.Round})
	}
	return events, nil
}
