package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// PendingLister lists incidents that are open and not yet notified.
type PendingLister interface {
	ListPendingEscalations(ctx context.Context) ([]*domain.Incident, error)
}

// Registrar accepts escalation registrations.
type Registrar interface {
	Schedule(incidentID string, deadline time.Time)
}

// Recover re-registers every pending incident at its original deadline.
// Scheduled entries live in memory only, so this runs on startup; incidents
// whose deadline passed while the process was down fire right away.
func Recover(ctx context.Context, lister PendingLister, registrar Registrar) (int, error) {
	pending, err := lister.ListPendingEscalations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending escalations: %w", err)
	}

	for _, incident := range pending {
		registrar.Schedule(incident.ID, incident.Deadline())
	}

	slog.Info("pending escalations recovered", "count", len(pending))

	return len(pending), nil
}
