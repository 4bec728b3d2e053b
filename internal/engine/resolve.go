package engine

import (
	"strings"

	"github.com/DoyleJ11/gameroom/pkg/domain"
)

// AttackOutcome is what a Resolver decided about one attack.
type AttackOutcome struct {
	Hit    bool
	Damage int
}

// Resolver decides attacks. Game systems plug in their own rules; the room
// only needs a hit flag and a damage total.
type Resolver interface {
	ResolveAttack(attacker, target domain.InitiativeEntry) AttackOutcome
}

// DiceResolver hits on a d20 of 10 or more and deals 1d6.
type DiceResolver struct {
	Roller Roller
}

func (d DiceResolver) ResolveAttack(_, _ domain.InitiativeEntry) AttackOutcome {
	if d.Roller.Roll(20) < 10 {
		return AttackOutcome{}
	}
	return AttackOutcome{Hit: true, Damage: d.Roller.Roll(6)}
}

// AttackResult is an outcome bound to the combatants it applied to.
type AttackResult struct {
	AttackerID string
	TargetID   string
	AttackOutcome
	TargetHP *int
}

// ResolveAttack resolves attackerID's attack on target, matched by actor id
// or case-insensitive name among active and parked entries. Damage is applied
// to c when the target's HP is known, never below zero. ok is false when
// either side is not in the encounter.
func ResolveAttack(c *domain.CombatState, attackerID, target string, r Resolver) (AttackResult, bool) {
	if c == nil || target == "" {
		return AttackResult{}, false
	}
	ai := c.IndexOf(attackerID)
	if ai < 0 {
		return AttackResult{}, false
	}
	t := findEntry(c, target)
	if t == nil {
		return AttackResult{}, false
	}

	out := r.ResolveAttack(c.Order[ai], *t)
	res := AttackResult{AttackerID: attackerID, TargetID: t.ActorID, AttackOutcome: out}
	if t.HP != nil {
		hp := *t.HP
		if out.Hit {
			hp = max(hp-out.Damage, 0)
		}
		t.HP = &hp
		res.TargetHP = &hp
	}
	return res, true
}

func findEntry(c *domain.CombatState, target string) *domain.InitiativeEntry {
	for i := range c.Order {
		if c.Order[i].ActorID == target || strings.EqualFold(c.Order[i].Name, target) {
			return &c.Order[i]
		}
	}
	for i := range c.Held {
		if c.Held[i].Entry.ActorID == target || strings.EqualFold(c.Held[i].Entry.Name, target) {
			return &c.Held[i].Entry
		}
	}
	return nil
}
