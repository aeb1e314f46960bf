package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evhub/core/sessionlog"
)

var records = []sessionlog.Record{{
	Timestamp:  time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	SessionID:  "s1",
	VehicleID:  "V1",
	ChargerID:  "H1_col1",
	HubID:      "H1",
	EnergyJ:    1.8e6,
	StartedSim: 100,
	EndedSim:   280,
	Reason:     "charging_end",
}}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,session_id,vehicle_id,charger_id,hub_id,energy_kwh,started_sim,ended_sim,reason", lines[0])
	assert.Equal(t, "2024-05-01T08:00:00Z,s1,V1,H1_col1,H1,0.500,100,280,charging_end", lines[1])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, records))
	assert.Contains(t, buf.String(), `"session_id":"s1"`)

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}
