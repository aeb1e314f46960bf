package charging

import (
	"sort"
	"strings"
)

// PlugType names a connector standard such as "AC" or "CCS".
type PlugType string

// PlugSet is a set of plug types.
type PlugSet map[PlugType]struct{}

// NewPlugSet builds a set from raw names. Names are trimmed and empty
// names are skipped.
func NewPlugSet(types ...string) PlugSet {
	s := make(PlugSet, len(types))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		s[PlugType(t)] = struct{}{}
	}
	return s
}

// Has reports whether t is part of the set.
func (s PlugSet) Has(t PlugType) bool {
	_, ok := s[t]
	return ok
}

// Intersects reports whether the two sets share at least one plug type.
func (s PlugSet) Intersects(o PlugSet) bool {
	a, b := s, o
	if len(b) < len(a) {
		a, b = b, a
	}
	for t := range a {
		if b.Has(t) {
			return true
		}
	}
	return false
}

// Sorted returns the plug names in lexical order.
func (s PlugSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}
