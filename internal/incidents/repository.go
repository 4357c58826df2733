// Package incidents provides incident reporting, storage contracts and HTTP handlers.
package incidents

import (
	"context"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// Repository defines the interface for incident storage.
type Repository interface {
	// CreateIncident persists a new open incident and fills ID, CreatedAt and UpdatedAt.
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]*domain.Incident, error)
	// ResolveIncident moves an open incident to resolved with the given solution.
	ResolveIncident(ctx context.Context, id, solution string) (*domain.Incident, error)
	DeleteIncident(ctx context.Context, id string) error

	// MarkNotified sets notified=true only where status is open and notified
	// is false. Reports whether a row changed.
	MarkNotified(ctx context.Context, id string) (bool, error)
	// ListPendingEscalations returns open incidents that were not notified yet.
	ListPendingEscalations(ctx context.Context) ([]*domain.Incident, error)

	Ping(ctx context.Context) error
}

// IncidentFilter holds filter options for listing incidents.
type IncidentFilter struct {
	Status *domain.IncidentStatus
	Limit  int
	Offset int
}
