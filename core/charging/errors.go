package charging

import "errors"

var (
	// ErrConfiguration reports an invalid hub/charger specification.
	ErrConfiguration = errors.New("configuration error")
	// ErrResourceConflict reports a charger already held by another vehicle.
	ErrResourceConflict = errors.New("resource conflict")
	// ErrInvalidTransition reports a state change that is not allowed,
	// such as deactivating an occupied charger.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrInactive reports an attempt to occupy an inactive charger.
	ErrInactive = errors.New("inactive resource")
	// ErrNotFound reports an unknown hub or charger id, or a lookup with
	// no matching charger.
	ErrNotFound = errors.New("not found")
)
