// Package metrics defines interfaces and implementations for collecting
// charging metrics. Sinks like PromSink and InfluxSink record session
// transitions, hub samples and missed matches, and can be combined with
// NewMultiSink. The factory helpers return a MultiSink automatically when
// multiple sinks are configured.
package metrics
