// Package sqlite provides SQLite implementation of the incidents repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/incidents"
	"github.com/google/uuid"
)

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const incidentColumns = `id, name, description, log, email, sla_ms, status, solution, notified, created_at, updated_at`

// Repository implements the incidents.Repository interface using SQLite.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new SQLite repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// CreateIncident creates a new incident in the database.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	id := uuid.NewString()
	now := r.now().UTC()
	sla := incident.SLADuration.Truncate(time.Millisecond)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO incidents (id, name, description, log, email, sla_ms, status, notified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id,
		incident.Name,
		incident.Description,
		incident.Log,
		incident.Email,
		sla.Milliseconds(),
		string(incident.Status),
		now.Format(timeLayout),
		now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}

	incident.ID = id
	incident.SLADuration = sla
	incident.Notified = false
	incident.CreatedAt = now
	incident.UpdatedAt = now
	return nil
}

// GetIncident retrieves an incident by its ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return getIncident(ctx, r.db, id)
}

// ListIncidents retrieves incidents matching the filter, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter incidents.IncidentFilter) ([]*domain.Incident, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	// SQLite requires LIMIT when OFFSET is used; -1 means no limit.
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	return r.queryIncidents(ctx, "list incidents", query, args...)
}

// ResolveIncident moves an open incident to resolved.
func (r *Repository) ResolveIncident(ctx context.Context, id, solution string) (*domain.Incident, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE incidents
		SET status = 'resolved', solution = ?, updated_at = ?
		WHERE id = ? AND status = 'open'`,
		solution, r.now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve incident: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("resolve incident: %w", err)
	}

	incident, err := getIncident(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, incidents.ErrAlreadyResolved
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return incident, nil
}

// DeleteIncident deletes an incident.
func (r *Repository) DeleteIncident(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM incidents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if affected == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// MarkNotified sets notified=1 if the incident is still open and not notified.
func (r *Repository) MarkNotified(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE incidents
		SET notified = 1, updated_at = ?
		WHERE id = ? AND status = 'open' AND notified = 0`,
		r.now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark incident notified: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark incident notified: %w", err)
	}
	return affected == 1, nil
}

// ListPendingEscalations returns open incidents that were not notified yet,
// oldest first.
func (r *Repository) ListPendingEscalations(ctx context.Context) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + `
		FROM incidents
		WHERE status = 'open' AND notified = 0
		ORDER BY created_at`
	return r.queryIncidents(ctx, "list pending escalations", query)
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) queryIncidents(ctx context.Context, op, query string, args ...any) ([]*domain.Incident, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getIncident(ctx context.Context, q queryer, id string) (*domain.Incident, error) {
	row := q.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)

	incident, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(row scanner) (*domain.Incident, error) {
	var (
		incident  domain.Incident
		logText   sql.NullString
		solution  sql.NullString
		status    string
		slaMS     int64
		notified  int
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&incident.ID,
		&incident.Name,
		&incident.Description,
		&logText,
		&incident.Email,
		&slaMS,
		&status,
		&solution,
		&notified,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if logText.Valid {
		incident.Log = &logText.String
	}
	if solution.Valid {
		incident.Solution = &solution.String
	}
	incident.Status = domain.IncidentStatus(status)
	incident.SLADuration = time.Duration(slaMS) * time.Millisecond
	incident.Notified = notified != 0

	if incident.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if incident.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &incident, nil
}
