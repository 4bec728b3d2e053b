package protocol

import (
	"fmt"

	"github.com/DoyleJ11/gameroom/pkg/domain"
)

// Client -> server kinds.
const (
	KindGetRoomState      Kind = "get_room_state"
	KindGetCombatState    Kind = "get_combat_state"
	KindStartCombat       Kind = "start_combat"
	KindNextTurn          Kind = "next_turn"
	KindEndCombat         Kind = "end_combat"
	KindHoldTurn          Kind = "hold_turn"
	KindReleaseHold       Kind = "release_hold"
	KindPassTurn          Kind = "pass_turn"
	KindSubmitAction      Kind = "submit_action"
	KindConfirmSuggestion Kind = "confirm_suggestion"
	KindCancelSuggestion  Kind = "cancel_suggestion"
	KindChat              Kind = "chat"
	KindAction            Kind = "action"
	KindKick              Kind = "kick"
	KindLeave             Kind = "leave"
	KindEndGame           Kind = "end_game"
)

// ClientMessage is a frame sent by a participant. The same values double as
// gateway request bodies.
type ClientMessage interface {
	Message
	isClientMessage()
}

type GetRoomState struct{}

type GetCombatState struct{}

// StartCombat rolls initiative for Combatants. An empty list means every
// participant with a linked actor.
type StartCombat struct {
	Combatants []domain.Combatant `json:"combatants,omitempty"`
}

type NextTurn struct{}

type EndCombat struct{}

type HoldTurn struct {
	ActorID        string          `json:"actorId"`
	HoldType       domain.HoldType `json:"holdType"`
	Trigger        string          `json:"trigger,omitempty"`
	TriggerActorID string          `json:"triggerActorId,omitempty"`
}

// ReleaseHold brings a parked actor back into the order at the current turn.
type ReleaseHold struct {
	ActorID string `json:"actorId"`
}

type PassTurn struct {
	ActorID string `json:"actorId"`
}

type SubmitAction struct {
	ActorID string        `json:"actorId"`
	Action  domain.Action `json:"action"`
}

// ConfirmSuggestion accepts candidate Candidate of a suggestion, or Action
// when the participant edited it first.
type ConfirmSuggestion struct {
	SuggestionID string         `json:"suggestionId"`
	Candidate    int            `json:"candidate,omitempty"`
	Action       *domain.Action `json:"action,omitempty"`
}

type CancelSuggestion struct {
	SuggestionID string `json:"suggestionId"`
}

// Chat is free narrative text; the narrative engine may answer it with a
// suggestion.
type Chat struct {
	Text string `json:"text"`
}

// Emote is free text describing what a character does ("action" frames).
type Emote struct {
	Text string `json:"text"`
}

type Kick struct {
	ParticipantID string `json:"participantId"`
}

type Leave struct{}

type EndGame struct{}

func (GetRoomState) Kind() Kind      { return KindGetRoomState }
func (GetCombatState) Kind() Kind    { return KindGetCombatState }
func (StartCombat) Kind() Kind       { return KindStartCombat }
func (NextTurn) Kind() Kind          { return KindNextTurn }
func (EndCombat) Kind() Kind         { return KindEndCombat }
func (HoldTurn) Kind() Kind          { return KindHoldTurn }
func (ReleaseHold) Kind() Kind       { return KindReleaseHold }
func (PassTurn) Kind() Kind          { return KindPassTurn }
func (SubmitAction) Kind() Kind      { return KindSubmitAction }
func (ConfirmSuggestion) Kind() Kind { return KindConfirmSuggestion }
func (CancelSuggestion) Kind() Kind  { return KindCancelSuggestion }
func (Chat) Kind() Kind              { return KindChat }
func (Emote) Kind() Kind             { return KindAction }
func (Kick) Kind() Kind              { return KindKick }
func (Leave) Kind() Kind             { return KindLeave }
func (EndGame) Kind() Kind           { return KindEndGame }

func (GetRoomState) isClientMessage()      {}
func (GetCombatState) isClientMessage()    {}
func (StartCombat) isClientMessage()       {}
func (NextTurn) isClientMessage()          {}
func (EndCombat) isClientMessage()         {}
func (HoldTurn) isClientMessage()          {}
func (ReleaseHold) isClientMessage()       {}
func (PassTurn) isClientMessage()          {}
func (SubmitAction) isClientMessage()      {}
func (ConfirmSuggestion) isClientMessage() {}
func (CancelSuggestion) isClientMessage()  {}
func (Chat) isClientMessage()              {}
func (Emote) isClientMessage()             {}
func (Kick) isClientMessage()              {}
func (Leave) isClientMessage()             {}
func (EndGame) isClientMessage()           {}

// DecodeClient parses one client frame.
func DecodeClient(data []byte) (ClientMessage, error) {
	kind, err := peekKind(data)
	if err != nil {
		return nil, err
	}

	var m Message
	switch kind {
	case KindGetRoomState:
		m, err = decodeInto[GetRoomState](data)
	case KindGetCombatState:
		m, err = decodeInto[GetCombatState](data)
	case KindStartCombat:
		m, err = decodeInto[StartCombat](data)
	case KindNextTurn:
		m, err = decodeInto[NextTurn](data)
	case KindEndCombat:
		m, err = decodeInto[EndCombat](data)
	case KindHoldTurn:
		m, err = decodeInto[HoldTurn](data)
	case KindReleaseHold:
		m, err = decodeInto[ReleaseHold](data)
	case KindPassTurn:
		m, err = decodeInto[PassTurn](data)
	case KindSubmitAction:
		m, err = decodeInto[SubmitAction](data)
	case KindConfirmSuggestion:
		m, err = decodeInto[ConfirmSuggestion](data)
	case KindCancelSuggestion:
		m, err = decodeInto[CancelSuggestion](data)
	case KindChat:
		m, err = decodeInto[Chat](data)
	case KindAction:
		m, err = decodeInto[Emote](data)
	case KindKick:
		m, err = decodeInto[Kick](data)
	case KindLeave:
		m, err = decodeInto[Leave](data)
	case KindEndGame:
		m, err = decodeInto[EndGame](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
	if err != nil {
		return nil, err
	}
	return m.(ClientMessage), nil
}
