package domain

// Controller says who drives an actor's turns.
type Controller string

const (
	ControllerPlayer  Controller = "player"
	ControllerMonster Controller = "monster"
	ControllerDM      Controller = "dm"
)

// Combatant is an actor entering combat, before initiative is rolled.
type Combatant struct {
	ActorID    string     `json:"actorId"`
	Name       string     `json:"name"`
	Modifier   int        `json:"modifier"`
	HP         *int       `json:"hp,omitempty"`
	MaxHP      *int       `json:"maxHp,omitempty"`
	Controller Controller `json:"controller"`
}

// InitiativeEntry is one slot of the turn order. Total is Roll+Modifier,
// fixed when initiative is rolled.
type InitiativeEntry struct {
	ActorID    string     `json:"actorId"`
	Name       string     `json:"name"`
	Roll       int        `json:"roll"`
	Modifier   int        `json:"modifier"`
	Total      int        `json:"total"`
	HP         *int       `json:"hp,omitempty"`
	MaxHP      *int       `json:"maxHp,omitempty"`
	Controller Controller `json:"controller"`
	Position   *Coord     `json:"position,omitempty"`
}

func (e InitiativeEntry) clone() InitiativeEntry {
	if e.HP != nil {
		hp := *e.HP
		e.HP = &hp
	}
	if e.MaxHP != nil {
		hp := *e.MaxHP
		e.MaxHP = &hp
	}
	if e.Position != nil {
		pos := *e.Position
		e.Position = &pos
	}
	return e
}

// HeldEntry is an entry parked outside the order by a "hold until".
type HeldEntry struct {
	Entry          InitiativeEntry `json:"entry"`
	Trigger        string          `json:"trigger,omitempty"`
	TriggerActorID string          `json:"triggerActorId,omitempty"`
}

// CombatState is the turn order of an encounter. A nil *CombatState means
// the room is not in combat.
type CombatState struct {
	Active bool              `json:"active"`
	Order  []InitiativeEntry `json:"order"`
	Index  int               `json:"index"`
	Round  int               `json:"round"`
	Held   []HeldEntry       `json:"held,omitempty"`
}

// Current returns the entry whose turn it is.
func (c *CombatState) Current() (InitiativeEntry, bool) {
	if c == nil || c.Index < 0 || c.Index >= len(c.Order) {
		return InitiativeEntry{}, false
	}
	return c.Order[c.Index], true
}

// Advance moves the pointer to the next entry, wrapping to the top of the
// order and starting a new round. It reports whether it wrapped.
func (c *CombatState) Advance() bool {
	if c == nil || len(c.Order) == 0 {
		return false
	}
	c.Index = (c.Index + 1) % len(c.Order)
	if c.Index == 0 {
		c.Round++
		return true
	}
	return false
}

// IndexOf returns the position of actorID in the order, or -1.
func (c *CombatState) IndexOf(actorID string) int {
	if c == nil {
		return -1
	}
	for i, e := range c.Order {
		if e.ActorID == actorID {
			return i
		}
	}
	return -1
}

// HeldIndex returns the position of actorID among parked entries, or -1.
func (c *CombatState) HeldIndex(actorID string) int {
	if c == nil {
		return -1
	}
	for i, h := range c.Held {
		if h.Entry.ActorID == actorID {
			return i
		}
	}
	return -1
}

// Clone deep-copies the state. Clone of nil is nil.
func (c *CombatState) Clone() *CombatState {
	if c == nil {
		return nil
	}
	out := *c
	out.Order = make([]InitiativeEntry, len(c.Order))
	for i, e := range c.Order {
		out.Order[i] = e.clone()
	}
	if c.Held != nil {
		out.Held = make([]HeldEntry, len(c.Held))
		for i, h := range c.Held {
			h.Entry = h.Entry.clone()
			out.Held[i] = h
		}
	}
	return &out
}
