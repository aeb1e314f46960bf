package scenarios

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evhub/core/events"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		sc, err := Load(f)
		require.NoError(t, err, f)
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestDecodeEvents(t *testing.T) {
	sc := &Scenario{Events: []map[string]any{
		{"type": "link_leave", "vehicle_id": "V1", "link_id": "L1", "length_m": 10, "time": 5},
	}}
	evs, err := sc.DecodeEvents()
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.LinkLeave{VehicleID: "V1", LinkID: "L1", LengthM: 10, Time: 5}, evs[0])

	sc.Events = append(sc.Events, map[string]any{"type": "warp"})
	_, err = sc.DecodeEvents()
	assert.ErrorIs(t, err, events.ErrUnknownKind)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load("no-file.yaml")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(":"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}
