package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetdash/internal/core"
)

func TestSelectionAddRemove(t *testing.T) {
	sel := NewSelection("Engineer")
	assert.Equal(t, []Slot{{ID: 1, JobTitle: "Engineer"}}, sel.Slots())

	assert.Equal(t, 2, sel.Add("Engineer"))
	assert.Equal(t, 3, sel.Add("Engineer"))

	sel.Remove(2)
	assert.Equal(t, 4, sel.Add("Engineer"), "next ID follows the highest, not the count")

	sel.Remove(1)
	sel.Remove(3)
	sel.Remove(4)
	slots := sel.Slots()
	require.Len(t, slots, 1, "the last slot is never removed")
	assert.Equal(t, 4, slots[0].ID)

	sel.Remove(99)
	assert.Len(t, sel.Slots(), 1)
}

func TestSelectionSetAndReset(t *testing.T) {
	sel := NewSelection("Engineer")
	id := sel.Add("Engineer")

	require.NoError(t, sel.Set(id, "Designer"))
	assert.ErrorIs(t, sel.Set(42, "Nobody"), ErrUnknownSlot)
	assert.Equal(t, "Designer", sel.Slots()[1].JobTitle)

	sel.Reset("Nurse")
	assert.Equal(t, []Slot{{ID: 1, JobTitle: "Nurse"}}, sel.Slots())
}

func TestSelectionSelected(t *testing.T) {
	sources := []core.IncomeSource{
		{ID: 1, JobTitle: "Engineer"},
		{ID: 2, JobTitle: "Designer"},
	}
	sel := NewSelection("Designer")
	sel.Add("Gone")
	sel.Add("Engineer")

	got := sel.Selected(sources)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)
}
