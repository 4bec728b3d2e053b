package room

import (
	"errors"

	"github.com/DoyleJ11/gameroom/internal/engine"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
)

var ErrRoomEnded = errors.New("room has ended")
var ErrClosed = errors.New("room closed")
var ErrUnknownParticipant = errors.New("unknown participant")
var ErrNotHost = errors.New("only the host can do that")
var ErrSuggestionNotFound = errors.New("suggestion not found")
var ErrInvalidCandidate = errors.New("invalid suggestion candidate")
var ErrEmptyText = errors.New("empty text")
var ErrCannotKickSelf = errors.New("cannot kick yourself")
var ErrUnsupported = errors.New("unsupported message")

// CodeOf maps an error from the room or the engine to its wire code.
func CodeOf(err error) protocol.ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrNotActor):
		return protocol.CodeNotActor
	case errors.Is(err, engine.ErrNotAuthorized), errors.Is(err, ErrNotHost):
		return protocol.CodeNotAuthorized
	case errors.Is(err, engine.ErrNotInCombat):
		return protocol.CodeNotInCombat
	case errors.Is(err, engine.ErrAlreadyInCombat):
		return protocol.CodeAlreadyInCombat
	case errors.Is(err, engine.ErrInvalidHold):
		return protocol.CodeInvalidHold
	case errors.Is(err, engine.ErrNotHeld):
		return protocol.CodeNotHeld
	case errors.Is(err, engine.ErrNoCombatants):
		return protocol.CodeNoCombatants
	case errors.Is(err, ErrUnknownParticipant), errors.Is(err, ErrSuggestionNotFound):
		return protocol.CodeNotFound
	case errors.Is(err, ErrRoomEnded), errors.Is(err, ErrClosed):
		return protocol.CodeRoomEnded
	case errors.Is(err, protocol.ErrUnknownType):
		return protocol.CodeUnknownType
	case errors.Is(err, engine.ErrDuplicateActor),
		errors.Is(err, engine.ErrInvalidAction),
		errors.Is(err, engine.ErrUnsupportedCommand),
		errors.Is(err, ErrInvalidCandidate),
		errors.Is(err, ErrEmptyText),
		errors.Is(err, ErrCannotKickSelf),
		errors.Is(err, ErrUnsupported),
		errors.Is(err, protocol.ErrMalformed):
		return protocol.CodeBadRequest
	default:
		return protocol.CodeInternal
	}
}

// ErrorFrame builds the error frame sent back to a rejected client.
func ErrorFrame(err error) protocol.Error {
	return protocol.Error{Code: CodeOf(err), Message: err.Error()}
}
