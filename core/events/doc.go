// Package events defines the simulation events consumed by the assignment
// coordinator and the notifications it publishes on the run bus.
//
// Inbound events:
//   - PersonLeavesVehicle: a person parks the vehicle they were driving
//   - ActivityStart, ActivityEnd: scheduled stops, keyed by person
//   - ChargingStart, ChargingEnd: reported by the charging collaborator
//   - VehicleEntersTraffic, VehicleLeavesTraffic, LinkLeave: movement
//   - EnergyUpdate: periodic state of charge sample
//
// Notifications:
//   - SessionStarted, SessionEnded, MatchMissed
package events
