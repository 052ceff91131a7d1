package tracking

import "errors"

// Precondition and lookup failures surfaced by the activation state machine
// and the ping pipeline. Handlers map these to HTTP statuses; everything else
// is a storage failure.
var (
	ErrFleetNotFound  = errors.New("fleet not found")
	ErrDriverNotFound = errors.New("driver not found")
	ErrPingNotFound   = errors.New("fleet location not found")

	ErrAlreadyActive   = errors.New("fleet is already active")
	ErrNotActive       = errors.New("fleet is not active")
	ErrNotBound        = errors.New("driver is not bound to this fleet")
	ErrDriverNotActive = errors.New("driver is not active")
	ErrFleetNotActive  = errors.New("fleet is not active")
	ErrDriverMismatch  = errors.New("driver ID does not match the driver ID in the fleet")
)

// Code returns a machine-checkable identifier for a tracking error, or
// "internal" for anything outside the taxonomy.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrFleetNotFound):
		return "fleet_not_found"
	case errors.Is(err, ErrDriverNotFound):
		return "driver_not_found"
	case errors.Is(err, ErrPingNotFound):
		return "fleet_location_not_found"
	case errors.Is(err, ErrAlreadyActive):
		return "fleet_already_active"
	case errors.Is(err, ErrNotBound):
		return "driver_not_bound"
	case errors.Is(err, ErrDriverNotActive):
		return "driver_not_active"
	case errors.Is(err, ErrFleetNotActive):
		return "fleet_not_active"
	case errors.Is(err, ErrNotActive):
		return "fleet_not_active"
	case errors.Is(err, ErrDriverMismatch):
		return "driver_mismatch"
	default:
		return "internal"
	}
}

// IsNotFound reports whether err is one of the lookup failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFleetNotFound) ||
		errors.Is(err, ErrDriverNotFound) ||
		errors.Is(err, ErrPingNotFound)
}

// IsConflict reports whether err is a state-machine precondition failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrNotBound) ||
		errors.Is(err, ErrDriverNotActive) ||
		errors.Is(err, ErrFleetNotActive) ||
		errors.Is(err, ErrDriverMismatch)
}
