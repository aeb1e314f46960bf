// Package charging models the charging infrastructure: individual chargers,
// the hubs that own them and the registry that indexes hubs by road link.
//
// Every hub carries its own mutex which guards its chargers, occupancy and
// energy totals. There is no registry-wide lock: the registry index is
// built once by NewRegistry and never changes afterwards, and no method
// holds one hub's lock while calling into another hub.
//
// Change tracking uses per-entity version counters. An entity is dirty
// while its version is ahead of the last acknowledged (published) version,
// so several mutations within one publishing interval collapse into a
// single dirty signal.
package charging
