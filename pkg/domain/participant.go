package domain

// Role distinguishes the room host from everyone else.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Participant is a member of a room's roster.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	ActorID   string `json:"actorId,omitempty"` // linked actor, if any
	Connected bool   `json:"connected"`
}

// IsHost reports whether the participant currently holds the host role.
func (p Participant) IsHost() bool { return p.Role == RoleHost }
