package room

import (
	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
)

type Msg interface{ isRoomMsg() }

// Join registers a participant connection. An empty ParticipantID creates a
// new participant; a known one reattaches it (reconnect).
type Join struct {
	ParticipantID string
	Name          string
	ActorID       string
	Outbox        chan protocol.ServerMessage // where this client receives frames
	Reply         chan JoinResult
}

type JoinResult struct {
	Participant domain.Participant
	Err         error
}

// Detach drops a connection without removing the participant. It is
// ignored if Outbox is no longer the participant's current one.
type Detach struct {
	ParticipantID string
	Outbox        chan protocol.ServerMessage
}

// FromClient applies a participant's command. With a nil Reply a rejection
// goes back to the participant as an error frame.
type FromClient struct {
	ParticipantID string
	Msg           protocol.ClientMessage
	Reply         chan Result
}

type Result struct {
	Version int
	Err     error
}

// Suggest adds a pending suggestion, typically from the narrative engine.
type Suggest struct {
	Suggestion domain.Suggestion
	Reply      chan Result
}

// Relay broadcasts a frame from an external store without interpreting it.
type Relay struct {
	Msg   protocol.ServerMessage
	Reply chan Result
}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

func (Join) isRoomMsg()       {}
func (Detach) isRoomMsg()     {}
func (FromClient) isRoomMsg() {}
func (Suggest) isRoomMsg()    {}
func (Relay) isRoomMsg()      {}
func (GetState) isRoomMsg()   {}
func (Shutdown) isRoomMsg()   {}

// View is a copy of the room safe to read outside the room goroutine.
type View struct {
	Version    int
	NumClients int
	Room       domain.Room
}
