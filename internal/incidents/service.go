package incidents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// Pagination defaults.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// MaxSLADuration bounds the SLA an incident may carry.
const MaxSLADuration = 10 * 365 * 24 * time.Hour

// EscalationScheduler registers the deferred overdue check for a new incident.
type EscalationScheduler interface {
	Schedule(incidentID string, deadline time.Time)
}

// Service implements incident business logic.
type Service struct {
	repo      Repository
	scheduler EscalationScheduler
}

// NewService creates a new incident service.
// scheduler may be nil, in which case no escalations are registered.
func NewService(repo Repository, scheduler EscalationScheduler) *Service {
	return &Service{
		repo:      repo,
		scheduler: scheduler,
	}
}

// CreateIncidentInput holds data for reporting an incident.
type CreateIncidentInput struct {
	Name        string
	Description string
	Email       string
	Log         *string
	SLADuration time.Duration
}

func (in CreateIncidentInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(in.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(in.Email) == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	if in.SLADuration < 0 || in.SLADuration > MaxSLADuration {
		return ErrInvalidSLA
	}
	return nil
}

// CreateIncident stores a new open incident and registers its escalation.
// It returns as soon as the escalation is registered, whatever the SLA.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var logText *string
	if input.Log != nil && strings.TrimSpace(*input.Log) != "" {
		logText = input.Log
	}

	incident := &domain.Incident{
		Name:        input.Name,
		Description: input.Description,
		Email:       input.Email,
		Log:         logText,
		SLADuration: input.SLADuration,
		Status:      domain.IncidentStatusOpen,
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	if s.scheduler != nil {
		s.scheduler.Schedule(incident.ID, incident.Deadline())
	}

	slog.Info("incident reported",
		"incident_id", incident.ID,
		"sla", incident.SLADuration,
		"deadline", incident.Deadline(),
	)

	return incident, nil
}

// GetIncident returns an incident by ID.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// ListIncidents returns incidents matching the filter, newest first.
func (s *Service) ListIncidents(ctx context.Context, filter IncidentFilter) ([]*domain.Incident, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, ErrInvalidStatus
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return s.repo.ListIncidents(ctx, filter)
}

// ResolveIncident closes an open incident with a solution.
// A pending escalation for it becomes a no-op.
func (s *Service) ResolveIncident(ctx context.Context, id, solution string) (*domain.Incident, error) {
	solution = strings.TrimSpace(solution)
	if solution == "" {
		return nil, ErrEmptySolution
	}

	incident, err := s.repo.ResolveIncident(ctx, id, solution)
	if err != nil {
		return nil, err
	}

	slog.Info("incident resolved", "incident_id", id, "notified", incident.Notified)

	return incident, nil
}

// DeleteIncident removes an incident. A pending escalation for it becomes a no-op.
func (s *Service) DeleteIncident(ctx context.Context, id string) error {
	if err := s.repo.DeleteIncident(ctx, id); err != nil {
		return err
	}

	slog.Info("incident deleted", "incident_id", id)

	return nil
}
