// Package escalation sends a single overdue email for incidents that stay
// open past their SLA deadline.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/incidents"
	"github.com/bissquit/incident-escalator/internal/notifications"
	"github.com/bissquit/incident-escalator/internal/pkg/ctxlog"
)

// Outcome describes how a deferred escalation ended.
type Outcome string

// Escalation outcomes.
const (
	OutcomeSent             Outcome = "sent"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeInFlight         Outcome = "in_flight"
	OutcomeLoadFailed       Outcome = "load_failed"
	OutcomeRenderFailed     Outcome = "render_failed"
	OutcomeSendFailed       Outcome = "send_failed"
	OutcomeStoreWriteFailed Outcome = "store_write_failed"
	OutcomeRaced            Outcome = "raced"
	OutcomeAlreadyDelivered Outcome = "already_delivered"
)

// IncidentStore is the part of the incident store the dispatcher needs.
type IncidentStore interface {
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	// MarkNotified sets notified=true only if the incident is still open and
	// not yet notified. Reports whether the record changed.
	MarkNotified(ctx context.Context, id string) (bool, error)
}

// Renderer produces the subject and body of an escalation email.
type Renderer interface {
	Render(incident *domain.Incident) (subject, body string, err error)
}

// Dispatcher runs the reload, check, send, mark sequence for one incident.
type Dispatcher struct {
	store    IncidentStore
	renderer Renderer
	sender   notifications.Sender

	mu       sync.Mutex
	inFlight map[string]struct{}
	// unrecorded holds incidents whose email went out but whose notified
	// flag failed to persist. They are never sent again by this process.
	unrecorded map[string]struct{}
}

// NewDispatcher creates a new escalation dispatcher.
func NewDispatcher(store IncidentStore, renderer Renderer, sender notifications.Sender) *Dispatcher {
	return &Dispatcher{
		store:      store,
		renderer:   renderer,
		sender:     sender,
		inFlight:   make(map[string]struct{}),
		unrecorded: make(map[string]struct{}),
	}
}

// Fire escalates the incident if it is still overdue.
//
// A missing incident is a normal outcome and returns a nil error. A send
// failure returns an error wrapping ErrSendFailed and leaves the incident
// un-notified. A failure to persist the notified flag after a successful send
// returns an error wrapping ErrStoreWrite.
func (d *Dispatcher) Fire(ctx context.Context, incidentID string) (Outcome, error) {
	outcome, err := d.fire(ctx, incidentID)
	recordFired(outcome)
	return outcome, err
}

func (d *Dispatcher) fire(ctx context.Context, incidentID string) (Outcome, error) {
	ctx = ctxlog.With(ctx, "incident_id", incidentID)
	logger := ctxlog.FromContext(ctx)

	if outcome, ok := d.acquire(incidentID); !ok {
		logger.Debug("escalation not started", "outcome", outcome)
		return outcome, nil
	}
	defer d.release(incidentID)

	incident, outcome, err := d.load(ctx, incidentID)
	if incident == nil {
		return outcome, err
	}

	subject, body, err := d.renderer.Render(incident)
	if err != nil {
		logger.Error("failed to render escalation email", "error", err)
		return OutcomeRenderFailed, fmt.Errorf("render escalation email: %w", err)
	}

	// Re-read right before sending to shrink the window in which a resolve
	// lands after the first check. The conditional MarkNotified below is what
	// keeps the stored state consistent.
	incident, outcome, err = d.load(ctx, incidentID)
	if incident == nil {
		return outcome, err
	}

	start := time.Now()
	err = d.sender.Send(ctx, notifications.Notification{
		To:      incident.Email,
		Subject: subject,
		Body:    body,
	})
	duration := time.Since(start)
	recordSendDuration(duration)

	if err != nil {
		logger.Error("escalation email send failed",
			"recipient", incident.Email,
			"duration", duration,
			"error", err,
		)
		return OutcomeSendFailed, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	changed, err := d.store.MarkNotified(ctx, incidentID)
	if err != nil {
		d.markUnrecorded(incidentID)
		recordStoreWriteFailure()
		logger.Error("escalation email delivered but notified flag not persisted",
			"recipient", incident.Email,
			"delivered", true,
			"error", err,
		)
		return OutcomeStoreWriteFailed, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	if !changed {
		logger.Warn("incident resolved or deleted while escalation email was in flight",
			"recipient", incident.Email,
		)
		return OutcomeRaced, nil
	}

	logger.Info("escalation email sent",
		"recipient", incident.Email,
		"duration", duration,
	)

	return OutcomeSent, nil
}

// load reads the live incident and returns it only if it is still overdue.
// When the incident is returned as nil, outcome and err say why.
func (d *Dispatcher) load(ctx context.Context, incidentID string) (*domain.Incident, Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	incident, err := d.store.GetIncident(ctx, incidentID)
	if err != nil {
		if errors.Is(err, incidents.ErrIncidentNotFound) {
			logger.Debug("escalation skipped, incident deleted")
			return nil, OutcomeNotFound, nil
		}
		logger.Error("failed to load incident for escalation", "error", err)
		return nil, OutcomeLoadFailed, fmt.Errorf("load incident: %w", err)
	}

	if !IsOverdue(incident) {
		logger.Debug("escalation skipped",
			"status", incident.Status,
			"notified", incident.Notified,
		)
		return nil, OutcomeSkipped, nil
	}

	return incident, "", nil
}

func (d *Dispatcher) acquire(incidentID string) (Outcome, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.unrecorded[incidentID]; ok {
		return OutcomeAlreadyDelivered, false
	}
	if _, ok := d.inFlight[incidentID]; ok {
		return OutcomeInFlight, false
	}
	d.inFlight[incidentID] = struct{}{}
	return "", true
}

func (d *Dispatcher) release(incidentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, incidentID)
}

func (d *Dispatcher) markUnrecorded(incidentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unrecorded[incidentID] = struct{}{}
}
