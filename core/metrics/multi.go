package metrics

// MultiSink fanouts events to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSession forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordSession(ev SessionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSession(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordHubState forwards hub samples to sinks that support them.
func (m *MultiSink) RecordHubState(ev HubStateEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(HubStateRecorder); ok {
			if err := rec.RecordHubState(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordMatchMiss forwards misses to sinks that support them.
func (m *MultiSink) RecordMatchMiss(ev MatchMissEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(MatchMissRecorder); ok {
			if err := rec.RecordMatchMiss(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
