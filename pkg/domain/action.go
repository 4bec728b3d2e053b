package domain

// ActionKind tags the structured actions a participant can take.
type ActionKind string

const (
	ActionMove   ActionKind = "move"
	ActionAttack ActionKind = "attack"
	ActionLoot   ActionKind = "loot"
	ActionOpen   ActionKind = "open"
	ActionSearch ActionKind = "search"
	ActionPass   ActionKind = "pass"
	ActionHold   ActionKind = "hold"
)

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionMove, ActionAttack, ActionLoot, ActionOpen, ActionSearch, ActionPass, ActionHold:
		return true
	}
	return false
}

// HoldType selects how a held turn comes back into the order.
type HoldType string

const (
	HoldEnd   HoldType = "end"   // re-enter at the tail of the current pass
	HoldUntil HoldType = "until" // parked until a trigger releases it
)

// Coord is a grid position.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Action is a structured intent. Target and Destination are optional;
// HoldType and Trigger only apply to ActionHold.
type Action struct {
	Kind        ActionKind `json:"kind"`
	Target      string     `json:"target,omitempty"`
	Destination *Coord     `json:"destination,omitempty"`
	HoldType    HoldType   `json:"holdType,omitempty"`
	Trigger     string     `json:"trigger,omitempty"`
}

// ParsedAction is an Action recognised from free text, with the
// classifier's confidence in [0,1].
type ParsedAction struct {
	Action
	ActorID    string  `json:"actorId,omitempty"`
	Confidence float64 `json:"confidence"`
}
