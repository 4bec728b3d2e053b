package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeEntries() *CombatState {
	return &CombatState{
		Active: true,
		Round:  1,
		Order: []InitiativeEntry{
			{ActorID: "a", Total: 18},
			{ActorID: "b", Total: 12},
			{ActorID: "c", Total: 7},
		},
	}
}

func TestAdvance_CyclesBackToStart(t *testing.T) {
	for start := 0; start < 3; start++ {
		c := threeEntries()
		c.Index = start
		for i := 0; i < len(c.Order); i++ {
			c.Advance()
		}
		assert.Equal(t, start, c.Index, "pointer after a full cycle from %d", start)
		assert.Equal(t, 2, c.Round)
	}
}

func TestAdvance_ReportsWrap(t *testing.T) {
	c := threeEntries()
	c.Index = 2
	assert.True(t, c.Advance())
	assert.Equal(t, 0, c.Index)
	assert.False(t, c.Advance())
}

func TestClone_IsDeep(t *testing.T) {
	hp := 9
	c := threeEntries()
	c.Order[0].HP = &hp
	c.Held = []HeldEntry{{Entry: InitiativeEntry{ActorID: "d"}, Trigger: "door opens"}}

	cp := c.Clone()
	*cp.Order[0].HP = 1
	cp.Order[1].ActorID = "z"
	cp.Held[0].Trigger = "x"

	require.Equal(t, 9, *c.Order[0].HP)
	assert.Equal(t, "b", c.Order[1].ActorID)
	assert.Equal(t, "door opens", c.Held[0].Trigger)
	assert.Nil(t, (*CombatState)(nil).Clone())
}

func TestCurrent_OnNilState(t *testing.T) {
	var c *CombatState
	_, ok := c.Current()
	assert.False(t, ok)
	assert.Equal(t, -1, c.IndexOf("a"))
}
