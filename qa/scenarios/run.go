package scenarios

import (
	"context"
	"strings"
	"testing"

	"github.com/kilianp07/evhub/core/assignment"
	"github.com/kilianp07/evhub/core/charging"
	"github.com/kilianp07/evhub/core/energy"
	"github.com/kilianp07/evhub/core/events"
	"github.com/kilianp07/evhub/core/fleet"
	"github.com/kilianp07/evhub/infra/hubspec"
	"github.com/kilianp07/evhub/infra/logger"
	"github.com/kilianp07/evhub/internal/eventbus"
)

func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	reg, err := charging.NewRegistry(hubspec.FromRecords(sc.Hubs))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	fl := fleet.New()
	for _, v := range sc.Vehicles {
		if err := fl.Register(v); err != nil {
			t.Fatalf("vehicle %s: %v", v.ID, err)
		}
	}
	policy, err := charging.NewSelectionPolicy(sc.Policy)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	svc := energy.NewConstantPower(1)
	bus := eventbus.NewTyped[events.Notification]()
	sub := bus.SubscribeBuffered(4096)
	coord, err := assignment.NewCoordinator(reg, fl, svc, policy, bus, logger.NopLogger{},
		assignment.Config{TargetSoC: sc.TargetSoC})
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	evs, err := sc.DecodeEvents()
	if err != nil {
		t.Fatalf("events: %v", err)
	}

	ctx := context.Background()
	runErr := func() error {
		for _, ev := range evs {
			for _, a := range svc.Accrue(ev.SimTime()) {
				if err := coord.Deliver(a.VehicleID, a.ChargerID, a.EnergyJ); err != nil {
					return err
				}
			}
			for _, due := range svc.Due(ev.SimTime()) {
				if err := coord.Handle(ctx, due); err != nil {
					return err
				}
			}
			if err := coord.Handle(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	}()
	switch {
	case sc.Expected.Error == "" && runErr != nil:
		t.Fatalf("scenario %s: unexpected error: %v", sc.Name, runErr)
	case sc.Expected.Error != "" && (runErr == nil || !strings.Contains(runErr.Error(), sc.Expected.Error)):
		t.Fatalf("scenario %s: expected error containing %q, got %v", sc.Name, sc.Expected.Error, runErr)
	}

	bus.Close()
	ended, misses := 0, 0
	for n := range sub {
		switch n.(type) {
		case events.SessionEnded:
			ended++
		case events.MatchMissed:
			misses++
		}
	}
	if ended != sc.Expected.EndedSessions {
		t.Errorf("scenario %s expected %d ended sessions, got %d", sc.Name, sc.Expected.EndedSessions, ended)
	}
	if misses != sc.Expected.Misses {
		t.Errorf("scenario %s expected %d misses, got %d", sc.Name, sc.Expected.Misses, misses)
	}
	if open := len(coord.Sessions()); open != sc.Expected.OpenSessions {
		t.Errorf("scenario %s expected %d open sessions, got %d", sc.Name, sc.Expected.OpenSessions, open)
	}
	for id, want := range sc.Expected.Hubs {
		h, err := reg.Hub(id)
		if err != nil {
			t.Errorf("scenario %s: %v", sc.Name, err)
			continue
		}
		if want.Occupancy != nil && h.Occupancy() != *want.Occupancy {
			t.Errorf("scenario %s hub %s expected occupancy %d, got %d", sc.Name, id, *want.Occupancy, h.Occupancy())
		}
		if want.EnergyJ != nil && !near(h.TotalEnergy(), *want.EnergyJ) {
			t.Errorf("scenario %s hub %s expected %.1f J, got %.1f J", sc.Name, id, *want.EnergyJ, h.TotalEnergy())
		}
	}
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}
