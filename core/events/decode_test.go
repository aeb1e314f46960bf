package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"charging_end","charger_id":"H1_col1","vehicle_id":"V1","energy_j":5000,"time":3600}`))
	require.NoError(t, err)
	end, ok := ev.(ChargingEnd)
	require.True(t, ok)
	assert.Equal(t, ChargingEnd{ChargerID: "H1_col1", VehicleID: "V1", EnergyJ: 5000, Time: 3600}, end)
	assert.Equal(t, 3600.0, ev.SimTime())

	ev, err = Decode([]byte(`{"type":"activity_start","person_id":"p1","activity_type":"car charging","link_id":"L100","time":1}`))
	require.NoError(t, err)
	assert.Equal(t, ActivityStart{PersonID: "p1", ActivityType: "car charging", LinkID: "L100", Time: 1}, ev)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte(`{"type":`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"link_leave","length_m":"far"}`))
	assert.Error(t, err)
}

func TestEncodeAddsType(t *testing.T) {
	in := LinkLeave{VehicleID: "V1", LinkID: "L1", LengthM: 250, Time: 10}
	b, err := Encode(in)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"link_leave"`)

	out, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
