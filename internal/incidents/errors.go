package incidents

import "errors"

// Incident errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrAlreadyResolved  = errors.New("incident already resolved")
	ErrEmptySolution    = errors.New("solution is required")
	ErrMissingFields    = errors.New("required fields missing")
	ErrInvalidSLA       = errors.New("sla duration must be between zero and ten years")
	ErrInvalidStatus    = errors.New("invalid incident status")
)
