package sessionlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return []Record{
		{Timestamp: base, SessionID: "s1", VehicleID: "V1", ChargerID: "H1_col1", HubID: "H1", EnergyJ: 5000, Reason: "charging_end"},
		{Timestamp: base.Add(time.Hour), SessionID: "s2", VehicleID: "V2", ChargerID: "H2_col1", HubID: "H2", EnergyJ: 100},
		{Timestamp: base.Add(2 * time.Hour), SessionID: "s3", VehicleID: "V1", ChargerID: "H2_col2", HubID: "H2", EnergyJ: 7},
	}
}

func exerciseStore(t *testing.T, s LogStore) {
	t.Helper()
	ctx := context.Background()
	recs := sampleRecords()
	for _, r := range recs {
		require.NoError(t, s.Append(ctx, r))
	}

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s1", all[0].SessionID)
	assert.Equal(t, 5000.0, all[0].EnergyJ)

	byVehicle, err := s.Query(ctx, Query{VehicleID: "V1"})
	require.NoError(t, err)
	assert.Len(t, byVehicle, 2)

	byHub, err := s.Query(ctx, Query{HubID: "H2", Start: recs[2].Timestamp})
	require.NoError(t, err)
	require.Len(t, byHub, 1)
	assert.Equal(t, "s3", byHub[0].SessionID)

	none, err := s.Query(ctx, Query{End: recs[0].Timestamp.Add(-time.Second)})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "sessions.jsonl"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "sessions.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(Config{Backend: "sqlite"})
	assert.Error(t, err)
	_, err = Open(Config{Backend: "postgres", Path: "x"})
	assert.Error(t, err)

	s, err = Open(Config{Backend: "jsonl", Path: filepath.Join(t.TempDir(), "a.jsonl")})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)
}
