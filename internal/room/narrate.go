package room

import (
	"fmt"
	"strings"

	"github.com/DoyleJ11/gameroom/internal/engine"
	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
)

var eventNames = map[engine.EventType]protocol.CombatEventName{
	engine.EvtCombatStarted: protocol.EventCombatStarted,
	engine.EvtTurnAdvanced:  protocol.EventTurnAdvanced,
	engine.EvtTurnPassed:    protocol.EventTurnPassed,
	engine.EvtTurnHeld:      protocol.EventTurnHeld,
	engine.EvtHoldReleased:  protocol.EventHoldReleased,
	engine.EvtActionTaken:   protocol.EventActionTaken,
	engine.EvtRoundStarted:  protocol.EventRoundStarted,
	engine.EvtCombatEnded:   protocol.EventCombatEnded,
}

func combatEvent(e engine.Event) protocol.CombatEvent {
	out := protocol.CombatEvent{
		Event:    eventNames[e.Type],
		ActorID:  e.ActorID,
		HoldType: e.HoldType,
		Round:    e.Round,
	}
	if e.Action != nil {
		out.Action = e.Action.Kind
		out.Target = e.Action.Target
		out.Destination = e.Action.Destination
	}
	return out
}

// describe renders an engine event as a log line. Names are looked up in
// both states since an actor may only appear in one of them.
func describe(e engine.Event, prev, next *domain.CombatState) string {
	name := actorName(e.ActorID, next, prev)

	switch e.Type {
	case engine.EvtCombatStarted:
		parts := make([]string, 0, len(next.Order))
		for _, entry := range next.Order {
			parts = append(parts, fmt.Sprintf("%s (%d)", entry.Name, entry.Total))
		}
		return "Combat begins. Initiative: " + strings.Join(parts, ", ")
	case engine.EvtTurnAdvanced:
		return name + " ends their turn"
	case engine.EvtTurnPassed:
		return name + " passes"
	case engine.EvtTurnHeld:
		if e.HoldType == domain.HoldUntil {
			if i := next.HeldIndex(e.ActorID); i >= 0 && next.Held[i].Trigger != "" {
				return name + " holds until " + next.Held[i].Trigger
			}
			return name + " holds their action"
		}
		return name + " holds until the end of the round"
	case engine.EvtHoldReleased:
		return name + " acts on their held action"
	case engine.EvtActionTaken:
		if e.Action == nil {
			return name + " acts"
		}
		return describeAction(name, *e.Action)
	case engine.EvtRoundStarted:
		return fmt.Sprintf("Round %d begins", e.Round)
	case engine.EvtCombatEnded:
		return "Combat ends"
	default:
		return string(e.Type)
	}
}

func describeAction(name string, a domain.Action) string {
	switch a.Kind {
	case domain.ActionMove:
		if a.Destination != nil {
			return fmt.Sprintf("%s moves to (%d, %d)", name, a.Destination.X, a.Destination.Y)
		}
		if a.Target != "" {
			return name + " moves to " + a.Target
		}
		return name + " moves"
	case domain.ActionAttack:
		return withTarget(name+" attacks", a.Target)
	case domain.ActionLoot:
		return withTarget(name+" loots", a.Target)
	case domain.ActionOpen:
		return withTarget(name+" opens", a.Target)
	case domain.ActionSearch:
		return withTarget(name+" searches", a.Target)
	case domain.ActionPass:
		return name + " passes"
	case domain.ActionHold:
		if a.Trigger != "" {
			return name + " holds until " + a.Trigger
		}
		return name + " holds"
	default:
		return name + " acts"
	}
}

func withTarget(s, target string) string {
	if target == "" {
		return s
	}
	return s + " " + target
}

func actorName(actorID string, states ...*domain.CombatState) string {
	for _, s := range states {
		if s == nil {
			continue
		}
		if i := s.IndexOf(actorID); i >= 0 {
			return s.Order[i].Name
		}
		if i := s.HeldIndex(actorID); i >= 0 {
			return s.Held[i].Entry.Name
		}
	}
	if actorID == "" {
		return "Someone"
	}
	return actorID
}
