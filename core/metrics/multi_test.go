package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	sessions int
	hubs     int
	err      error
}

func (r *recordSink) RecordSession(SessionEvent) error {
	r.sessions++
	return r.err
}

func (r *recordSink) RecordHubState(HubStateEvent) error {
	r.hubs++
	return nil
}

// sessionOnly does not implement the optional recorders.
type sessionOnly struct{ n int }

func (s *sessionOnly) RecordSession(SessionEvent) error { s.n++; return nil }

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &sessionOnly{}
	m := NewMultiSink(s1, s2)
	require.NoError(t, m.RecordSession(SessionEvent{Phase: SessionStarted}))
	require.NoError(t, m.RecordHubState(HubStateEvent{HubID: "H1"}))
	require.NoError(t, m.RecordMatchMiss(MatchMissEvent{}))
	assert.Equal(t, 1, s1.sessions)
	assert.Equal(t, 1, s1.hubs)
	assert.Equal(t, 1, s2.n)
}

func TestMultiSink_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordSink{err: boom}
	s2 := &recordSink{}
	err := NewMultiSink(s1, s2).RecordSession(SessionEvent{})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, s2.sessions)
}
