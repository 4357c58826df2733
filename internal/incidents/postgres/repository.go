// Package postgres provides PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/incidents"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const incidentColumns = `id, name, description, log, email, sla_ms, status, solution, notified, created_at, updated_at`

// Repository implements the incidents.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIncident creates a new incident in the database.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (name, description, log, email, sla_ms, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, notified, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		incident.Name,
		incident.Description,
		incident.Log,
		incident.Email,
		incident.SLADuration.Milliseconds(),
		incident.Status,
	).Scan(&incident.ID, &incident.Notified, &incident.CreatedAt, &incident.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	incident.SLADuration = incident.SLADuration.Truncate(time.Millisecond)
	return nil
}

// GetIncident retrieves an incident by its ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	if !isUUID(id) {
		return nil, incidents.ErrIncidentNotFound
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// ListIncidents retrieves incidents matching the filter, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter incidents.IncidentFilter) ([]*domain.Incident, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	return r.queryIncidents(ctx, "list incidents", query, args...)
}

// ResolveIncident moves an open incident to resolved.
func (r *Repository) ResolveIncident(ctx context.Context, id, solution string) (*domain.Incident, error) {
	if !isUUID(id) {
		return nil, incidents.ErrIncidentNotFound
	}

	query := `
		UPDATE incidents
		SET status = 'resolved', solution = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING ` + incidentColumns

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id, solution))
	if err == nil {
		return incident, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resolve incident: %w", err)
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve incident: %w", err)
	}
	if !exists {
		return nil, incidents.ErrIncidentNotFound
	}
	return nil, incidents.ErrAlreadyResolved
}

// DeleteIncident deletes an incident.
func (r *Repository) DeleteIncident(ctx context.Context, id string) error {
	if !isUUID(id) {
		return incidents.ErrIncidentNotFound
	}

	result, err := r.db.Exec(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// MarkNotified sets notified=true if the incident is still open and not notified.
func (r *Repository) MarkNotified(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}

	query := `
		UPDATE incidents
		SET notified = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'open' AND notified = FALSE
	`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark incident notified: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ListPendingEscalations returns open incidents that were not notified yet,
// oldest first.
func (r *Repository) ListPendingEscalations(ctx context.Context) ([]*domain.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE status = 'open' AND notified = FALSE
		ORDER BY created_at
	`
	return r.queryIncidents(ctx, "list pending escalations", query)
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *Repository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM incidents WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *Repository) queryIncidents(ctx context.Context, op, query string, args ...interface{}) ([]*domain.Incident, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	result := make([]*domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		result = append(result, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var (
		incident domain.Incident
		slaMS    int64
	)
	err := row.Scan(
		&incident.ID,
		&incident.Name,
		&incident.Description,
		&incident.Log,
		&incident.Email,
		&slaMS,
		&incident.Status,
		&incident.Solution,
		&incident.Notified,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	incident.SLADuration = time.Duration(slaMS) * time.Millisecond
	return &incident, nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
