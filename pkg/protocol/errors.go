package protocol

// ErrorCode is the machine-readable reason attached to a rejection, shared by
// websocket error frames and gateway error bodies.
type ErrorCode string

const (
	CodeNotActor        ErrorCode = "not_actor"
	CodeNotAuthorized   ErrorCode = "not_authorized"
	CodeNotInCombat     ErrorCode = "not_in_combat"
	CodeAlreadyInCombat ErrorCode = "already_in_combat"
	CodeInvalidHold     ErrorCode = "invalid_hold"
	CodeNotHeld         ErrorCode = "not_held"
	CodeNoCombatants    ErrorCode = "no_combatants"
	CodeNotFound        ErrorCode = "not_found"
	CodeRoomEnded       ErrorCode = "room_ended"
	CodeBadRequest      ErrorCode = "bad_request"
	CodeUnknownType     ErrorCode = "unknown_type"
	CodeInternal        ErrorCode = "internal"
)

// Stale reports whether the code suggests the sender acted on an out of
// date view and should re-fetch state.
func (c ErrorCode) Stale() bool {
	return c == CodeNotActor || c == CodeNotInCombat || c == CodeAlreadyInCombat
}
