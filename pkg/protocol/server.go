package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/gameroom/pkg/domain"
)

// Server -> client kinds.
const (
	KindRoomState          Kind = "room_state"
	KindCombatUpdate       Kind = "combat_update"
	KindCombatEvent        Kind = "combat_event"
	KindCombatResult       Kind = "combat_result"
	KindPlayerJoined       Kind = "player_joined"
	KindPlayerLeft         Kind = "player_left"
	KindPlayerKicked       Kind = "player_kicked"
	KindGameEnded          Kind = "game_ended"
	KindActionSuggestion   Kind = "action_suggestion"
	KindSuggestionResolved Kind = "suggestion_resolved"
	KindLogEntry           Kind = "log_entry"
	KindInventoryUpdate    Kind = "inventory_update"
	KindCharacterUpdate    Kind = "character_update"
	KindError              Kind = "error"
)

// ServerMessage is a frame broadcast by a room or addressed to one client.
type ServerMessage interface {
	Message
	isServerMessage()
}

// RoomState is the full room snapshot sent on join and on request. Self is
// the receiving participant's id.
type RoomState struct {
	Version int         `json:"version"`
	Self    string      `json:"self,omitempty"`
	Room    domain.Room `json:"room"`
}

// CombatUpdate carries the whole combat state. A nil Combat means combat is
// over. Clients replace their local copy with it unconditionally.
type CombatUpdate struct {
	Version int                 `json:"version"`
	Combat  *domain.CombatState `json:"combat"`
}

// CombatEventName names an incremental combat change.
type CombatEventName string

const (
	EventCombatStarted CombatEventName = "combat_started"
	EventTurnAdvanced  CombatEventName = "turn_advanced"
	EventTurnPassed    CombatEventName = "turn_passed"
	EventTurnHeld      CombatEventName = "turn_held"
	EventHoldReleased  CombatEventName = "hold_released"
	EventActionTaken   CombatEventName = "action"
	EventRoundStarted  CombatEventName = "round_started"
	EventCombatEnded   CombatEventName = "combat_ended"
)

// CombatEvent is a latency optimisation only; the next CombatUpdate wins.
type CombatEvent struct {
	Event       CombatEventName   `json:"event"`
	ActorID     string            `json:"actorId,omitempty"`
	Action      domain.ActionKind `json:"action,omitempty"`
	Target      string            `json:"target,omitempty"`
	Destination *domain.Coord     `json:"destination,omitempty"`
	HoldType    domain.HoldType   `json:"holdType,omitempty"`
	Round       int               `json:"round,omitempty"`
}

type CombatResult struct {
	ActorID  string `json:"actorId"`
	TargetID string `json:"targetId"`
	Hit      bool   `json:"hit"`
	Damage   int    `json:"damage"`
	TargetHP *int   `json:"targetHp,omitempty"`
}

type PlayerJoined struct {
	Participant domain.Participant `json:"participant"`
}

type PlayerLeft struct {
	ParticipantID string `json:"participantId"`
	NewHostID     string `json:"newHostId,omitempty"`
}

type PlayerKicked struct {
	ParticipantID string `json:"participantId"`
}

type GameEnded struct {
	Reason string `json:"reason,omitempty"`
}

type ActionSuggestion struct {
	Suggestion domain.Suggestion `json:"suggestion"`
}

// SuggestionOutcome is how a suggestion left the pending set.
type SuggestionOutcome string

const (
	OutcomeConfirmed SuggestionOutcome = "confirmed"
	OutcomeCanceled  SuggestionOutcome = "canceled"
)

type SuggestionResolved struct {
	SuggestionID string            `json:"suggestionId"`
	Outcome      SuggestionOutcome `json:"outcome"`
}

// LogEntry announces a line appended to the room log.
type LogEntry struct {
	Entry domain.LogEntry `json:"entry"`
}

// InventoryUpdate and CharacterUpdate are relayed from external stores; the
// room never interprets Data.
type InventoryUpdate struct {
	ActorID string          `json:"actorId"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type CharacterUpdate struct {
	ActorID string          `json:"actorId"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error rejects a command from the receiving client.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func (RoomState) Kind() Kind          { return KindRoomState }
func (CombatUpdate) Kind() Kind       { return KindCombatUpdate }
func (CombatEvent) Kind() Kind        { return KindCombatEvent }
func (CombatResult) Kind() Kind       { return KindCombatResult }
func (PlayerJoined) Kind() Kind       { return KindPlayerJoined }
func (PlayerLeft) Kind() Kind         { return KindPlayerLeft }
func (PlayerKicked) Kind() Kind       { return KindPlayerKicked }
func (GameEnded) Kind() Kind          { return KindGameEnded }
func (ActionSuggestion) Kind() Kind   { return KindActionSuggestion }
func (SuggestionResolved) Kind() Kind { return KindSuggestionResolved }
func (LogEntry) Kind() Kind           { return KindLogEntry }
func (InventoryUpdate) Kind() Kind    { return KindInventoryUpdate }
func (CharacterUpdate) Kind() Kind    { return KindCharacterUpdate }
func (Error) Kind() Kind              { return KindError }

func (RoomState) isServerMessage()          {}
func (CombatUpdate) isServerMessage()       {}
func (CombatEvent) isServerMessage()        {}
func (CombatResult) isServerMessage()       {}
func (PlayerJoined) isServerMessage()       {}
func (PlayerLeft) isServerMessage()         {}
func (PlayerKicked) isServerMessage()       {}
func (GameEnded) isServerMessage()          {}
func (ActionSuggestion) isServerMessage()   {}
func (SuggestionResolved) isServerMessage() {}
func (LogEntry) isServerMessage()           {}
func (InventoryUpdate) isServerMessage()    {}
func (CharacterUpdate) isServerMessage()    {}
func (Error) isServerMessage()              {}

// DecodeServer parses one server frame.
func DecodeServer(data []byte) (ServerMessage, error) {
	kind, err := peekKind(data)
	if err != nil {
		return nil, err
	}

	var m Message
	switch kind {
	case KindRoomState:
		m, err = decodeInto[RoomState](data)
	case KindCombatUpdate:
		m, err = decodeInto[CombatUpdate](data)
	case KindCombatEvent:
		m, err = decodeInto[CombatEvent](data)
	case KindCombatResult:
		m, err = decodeInto[CombatResult](data)
	case KindPlayerJoined:
		m, err = decodeInto[PlayerJoined](data)
	case KindPlayerLeft:
		m, err = decodeInto[PlayerLeft](data)
	case KindPlayerKicked:
		m, err = decodeInto[PlayerKicked](data)
	case KindGameEnded:
		m, err = decodeInto[GameEnded](data)
	case KindActionSuggestion:
		m, err = decodeInto[ActionSuggestion](data)
	case KindSuggestionResolved:
		m, err = decodeInto[SuggestionResolved](data)
	case KindLogEntry:
		m, err = decodeInto[LogEntry](data)
	case KindInventoryUpdate:
		m, err = decodeInto[InventoryUpdate](data)
	case KindCharacterUpdate:
		m, err = decodeInto[CharacterUpdate](data)
	case KindError:
		m, err = decodeInto[Error](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
	if err != nil {
		return nil, err
	}
	return m.(ServerMessage), nil
}
