package charging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCharger() *Charger {
	return newCharger(ChargerSpec{ID: "H1_col1", HubID: "H1", Plugs: []string{"AC"}, PowerW: 11000}, 0)
}

func TestCharger_OccupyRelease(t *testing.T) {
	c := newTestCharger()

	changed, err := c.occupy("V1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = c.occupy("V1")
	require.NoError(t, err, "same vehicle is idempotent")
	assert.False(t, changed)

	_, err = c.occupy("V2")
	assert.ErrorIs(t, err, ErrResourceConflict)
	assert.Equal(t, "V1", c.occupant)

	assert.Equal(t, "V1", c.release())
	assert.Equal(t, "", c.release(), "second release is a no-op")
}

func TestCharger_OccupyInactive(t *testing.T) {
	c := newTestCharger()
	require.NoError(t, c.setActive(false))
	_, err := c.occupy("V1")
	assert.True(t, errors.Is(err, ErrInactive))
	assert.Empty(t, c.occupant)
}

func TestCharger_DeactivateOccupied(t *testing.T) {
	c := newTestCharger()
	_, err := c.occupy("V1")
	require.NoError(t, err)
	c.setIntervalEnergy(42)
	v := c.version

	err = c.setActive(false)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.True(t, c.active)
	assert.Equal(t, "V1", c.occupant)
	assert.Equal(t, 42.0, c.intervalJ)
	assert.Equal(t, v, c.version)
}

func TestCharger_ActivationResetsInterval(t *testing.T) {
	c := newTestCharger()
	c.setIntervalEnergy(100)
	require.NoError(t, c.setActive(false))
	assert.Zero(t, c.intervalJ)

	c.setIntervalEnergy(100)
	assert.Zero(t, c.intervalJ, "inactive chargers report no delivery")

	require.NoError(t, c.setActive(true))
	c.setIntervalEnergy(5)
	assert.Equal(t, 5.0, c.intervalJ)
}

func TestCharger_CumulativeEnergyMonotonic(t *testing.T) {
	c := newTestCharger()
	prev := 0.0
	for _, d := range []float64{10, -5, 0, 3.5, -100, 1} {
		c.addCumulativeEnergy(d)
		assert.GreaterOrEqual(t, c.cumulativeJ, prev)
		prev = c.cumulativeJ
	}
	assert.Equal(t, 14.5, c.cumulativeJ)
	assert.Equal(t, 14.5, c.intervalJ)
}

func TestCharger_Dirty(t *testing.T) {
	c := newTestCharger()
	assert.False(t, c.dirty())

	_, _ = c.occupy("V1")
	c.addCumulativeEnergy(1)
	assert.True(t, c.dirty())

	c.published = c.version
	assert.False(t, c.dirty())

	c.addCumulativeEnergy(-1)
	assert.False(t, c.dirty(), "ignored delta is not a change")
}

func TestPlugSet(t *testing.T) {
	s := NewPlugSet(" AC ", "", "CCS")
	assert.Equal(t, []string{"AC", "CCS"}, s.Sorted())
	assert.True(t, s.Intersects(NewPlugSet("CCS", "CHAdeMO")))
	assert.False(t, s.Intersects(NewPlugSet("Type2")))
	assert.False(t, s.Intersects(NewPlugSet()))
}
