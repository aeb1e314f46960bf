// Package assignment matches vehicles arriving at a charging activity to a
// free compatible charger and releases the pairing when charging or the
// activity ends.
//
// A vehicle is either unassigned or holds exactly one Session. The
// Coordinator is driven by a single goroutine through Handle; Sessions may
// be read concurrently.
package assignment
