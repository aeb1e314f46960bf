package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/evhub/core/events"
	coremetrics "github.com/kilianp07/evhub/core/metrics"
	"github.com/kilianp07/evhub/core/sessionlog"
	"github.com/kilianp07/evhub/infra/logger"
	"github.com/kilianp07/evhub/internal/eventbus"
)

// StartEventCollector subscribes to the notification bus and forwards
// session transitions to the sink and completed sessions to the session
// log. store may be nil. The subscription is reliable: a slow sink or
// store slows the publisher down instead of losing audit records. The returned channel is closed once the
// collector has drained and stopped, which happens when ctx is canceled or
// the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.Notification], sink coremetrics.MetricsSink, store sessionlog.LogStore, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.SubscribeReliable(1024)
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-sub:
				if !ok {
					return
				}
				collect(ctx, n, sink, store, log)
			}
		}
	}()
	return done
}

func collect(ctx context.Context, n events.Notification, sink coremetrics.MetricsSink, store sessionlog.LogStore, log logger.Logger) {
	switch e := n.(type) {
	case events.SessionStarted:
		if err := sink.RecordSession(coremetrics.SessionEvent{
			SessionID: e.SessionID,
			VehicleID: e.VehicleID,
			ChargerID: e.ChargerID,
			HubID:     e.HubID,
			Phase:     coremetrics.SessionStarted,
			Time:      at(e.At),
		}); err != nil {
			log.Warnf("record session start %s: %v", e.SessionID, err)
		}
	case events.SessionEnded:
		if err := sink.RecordSession(coremetrics.SessionEvent{
			SessionID: e.SessionID,
			VehicleID: e.VehicleID,
			ChargerID: e.ChargerID,
			HubID:     e.HubID,
			Phase:     coremetrics.SessionEnded,
			EnergyJ:   e.EnergyJ,
			DurationS: e.Duration,
			Reason:    e.Reason,
			Time:      at(e.At),
		}); err != nil {
			log.Warnf("record session end %s: %v", e.SessionID, err)
		}
		if store == nil {
			return
		}
		rec := sessionlog.Record{
			Timestamp:  at(e.At),
			SessionID:  e.SessionID,
			VehicleID:  e.VehicleID,
			ChargerID:  e.ChargerID,
			HubID:      e.HubID,
			EnergyJ:    e.EnergyJ,
			StartedSim: e.SimTime - e.Duration,
			EndedSim:   e.SimTime,
			Reason:     e.Reason,
		}
		if err := store.Append(ctx, rec); err != nil {
			log.Errorf("session log append %s: %v", e.SessionID, err)
		}
	case events.MatchMissed:
		r, ok := sink.(coremetrics.MatchMissRecorder)
		if !ok {
			return
		}
		if err := r.RecordMatchMiss(coremetrics.MatchMissEvent{VehicleID: e.VehicleID, LinkID: e.LinkID, Time: at(e.At)}); err != nil {
			log.Warnf("record match miss %s: %v", e.VehicleID, err)
		}
	}
}

func at(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
