package fleet

import (
	"fmt"
	"strings"
)

// State is the discrete driving state of a vehicle.
type State int

const (
	Idle State = iota
	Moving
	Stopped
	Charging
	Parked
)

var stateNames = [...]string{"IDLE", "MOVING", "STOPPED", "CHARGING", "PARKED"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState converts a label such as "charging" back to a State.
func ParseState(label string) (State, error) {
	up := strings.ToUpper(strings.TrimSpace(label))
	for i, n := range stateNames {
		if n == up {
			return State(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown vehicle state %q", label)
}

// MarshalText encodes the state label.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state label.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
