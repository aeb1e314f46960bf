package kpi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Aggregation(t *testing.T) {
	s := NewMemoryStore()
	d := Day(time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, s.Add(Record{HubID: "H1", Date: d, DeliveredKWh: 2, Sessions: 1}))
	require.NoError(t, s.Add(Record{HubID: "H1", Date: d.Add(2 * time.Hour), DeliveredKWh: 1, Sessions: 1}))
	require.NoError(t, s.Add(Record{HubID: "H1", Date: d.AddDate(0, 0, 1), DeliveredKWh: 7, Sessions: 1}))
	require.NoError(t, s.Add(Record{HubID: "H2", Date: d, DeliveredKWh: 5}))

	recs, err := s.Query("H1", d, d)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 3.0, recs[0].DeliveredKWh)
	assert.Equal(t, 2, recs[0].Sessions)

	recs, err = s.Query("H1", d, d.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Date.Before(recs[1].Date))
}

func TestRecordCalculations(t *testing.T) {
	assert.Equal(t, 2.0, Record{DeliveredKWh: 4, Sessions: 2}.MeanSessionKWh())
	assert.Zero(t, Record{DeliveredKWh: 4}.MeanSessionKWh())
	assert.Equal(t, 1.0, JoulesToKWh(3.6e6))
}
