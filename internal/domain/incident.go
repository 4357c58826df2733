// Package domain contains the core entities shared across packages.
package domain

import "time"

// IncidentStatus represents the lifecycle state of an incident.
type IncidentStatus string

// Incident statuses. The only allowed transition is open -> resolved.
const (
	IncidentStatusOpen     IncidentStatus = "open"
	IncidentStatusResolved IncidentStatus = "resolved"
)

// IsValid checks if the status is a known incident status.
func (s IncidentStatus) IsValid() bool {
	return s == IncidentStatusOpen || s == IncidentStatusResolved
}

// Incident represents a reported incident tracked against an SLA.
type Incident struct {
	ID          string
	Name        string
	Description string
	Log         *string
	Email       string
	SLADuration time.Duration
	Status      IncidentStatus
	Solution    *string
	Notified    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Deadline returns the moment the incident becomes eligible for escalation.
func (i *Incident) Deadline() time.Time {
	return i.CreatedAt.Add(i.SLADuration)
}
