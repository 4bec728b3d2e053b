package engine

import (
	"sort"

	"github.com/DoyleJ11/gameroom/pkg/domain"
)

// RollInitiative rolls a d20 for each combatant and fixes Total as
// Roll+Modifier. The result is in combatant order; SortInitiative orders it.
func RollInitiative(combatants []domain.Combatant, r Roller) []domain.InitiativeEntry {
	entries := make([]domain.InitiativeEntry, 0, len(combatants))
	for _, c := range combatants {
		roll := r.Roll(20)
		controller := c.Controller
		if controller == "" {
			controller = domain.ControllerPlayer
		}
		entries = append(entries, domain.InitiativeEntry{
			ActorID:    c.ActorID,
			Name:       c.Name,
			Roll:       roll,
			Modifier:   c.Modifier,
			Total:      roll + c.Modifier,
			HP:         c.HP,
			MaxHP:      c.MaxHP,
			Controller: controller,
		})
	}
	return entries
}

// SortInitiative orders entries by Total, highest first. Equal totals go to
// the higher Modifier; after that the original roll order is kept.
func SortInitiative(entries []domain.InitiativeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Total != entries[j].Total {
			return entries[i].Total > entries[j].Total
		}
		return entries[i].Modifier > entries[j].Modifier
	})
}
