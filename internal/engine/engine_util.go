package engine

import "math/rand/v2"

// Roller produces die rolls in [1, sides].
type Roller interface {
	Roll(sides int) int
}

// RandRoller rolls with math/rand/v2's global source.
type RandRoller struct{}

func (RandRoller) Roll(sides int) int {
	if sides < 1 {
		return 0
	}
	return rand.IntN(sides) + 1
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
