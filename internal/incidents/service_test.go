package incidents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mu        sync.Mutex
	incidents map[string]*domain.Incident
	seq       int
	createErr error
	lastList  IncidentFilter
	now       time.Time
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		incidents: make(map[string]*domain.Incident),
		now:       time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *mockRepository) CreateIncident(_ context.Context, incident *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	incident.ID = fmt.Sprintf("inc-%d", m.seq)
	incident.CreatedAt = m.now
	incident.UpdatedAt = m.now
	clone := *incident
	m.incidents[incident.ID] = &clone
	return nil
}

func (m *mockRepository) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	incident, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	clone := *incident
	return &clone, nil
}

func (m *mockRepository) ListIncidents(_ context.Context, filter IncidentFilter) ([]*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastList = filter
	result := make([]*domain.Incident, 0, len(m.incidents))
	for _, incident := range m.incidents {
		if filter.Status != nil && incident.Status != *filter.Status {
			continue
		}
		clone := *incident
		result = append(result, &clone)
	}
	return result, nil
}

func (m *mockRepository) ResolveIncident(_ context.Context, id, solution string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	incident, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	if incident.Status != domain.IncidentStatusOpen {
		return nil, ErrAlreadyResolved
	}
	incident.Status = domain.IncidentStatusResolved
	incident.Solution = &solution
	clone := *incident
	return &clone, nil
}

func (m *mockRepository) DeleteIncident(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.incidents[id]; !ok {
		return ErrIncidentNotFound
	}
	delete(m.incidents, id)
	return nil
}

func (m *mockRepository) MarkNotified(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	incident, ok := m.incidents[id]
	if !ok || incident.Status != domain.IncidentStatusOpen || incident.Notified {
		return false, nil
	}
	incident.Notified = true
	return true, nil
}

func (m *mockRepository) ListPendingEscalations(_ context.Context) ([]*domain.Incident, error) {
	return nil, nil
}

func (m *mockRepository) Ping(_ context.Context) error {
	return nil
}

type scheduledEntry struct {
	incidentID string
	deadline   time.Time
}

type mockScheduler struct {
	mu      sync.Mutex
	entries []scheduledEntry
}

func (m *mockScheduler) Schedule(incidentID string, deadline time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, scheduledEntry{incidentID: incidentID, deadline: deadline})
}

func validInput() CreateIncidentInput {
	return CreateIncidentInput{
		Name:        "checkout latency",
		Description: "p99 above 2s",
		Email:       "sre@example.com",
		SLADuration: 30 * time.Minute,
	}
}

func TestService_CreateIncident_SchedulesAtDeadline(t *testing.T) {
	repo := newMockRepository()
	scheduler := &mockScheduler{}
	svc := NewService(repo, scheduler)

	incident, err := svc.CreateIncident(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, "inc-1", incident.ID)
	assert.Equal(t, domain.IncidentStatusOpen, incident.Status)
	assert.False(t, incident.Notified)

	require.Len(t, scheduler.entries, 1)
	assert.Equal(t, "inc-1", scheduler.entries[0].incidentID)
	assert.Equal(t, repo.now.Add(30*time.Minute), scheduler.entries[0].deadline)
}

func TestService_CreateIncident_ZeroSLA(t *testing.T) {
	repo := newMockRepository()
	scheduler := &mockScheduler{}
	svc := NewService(repo, scheduler)

	input := validInput()
	input.SLADuration = 0

	incident, err := svc.CreateIncident(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, scheduler.entries, 1)
	assert.Equal(t, incident.CreatedAt, scheduler.entries[0].deadline)
}

func TestService_CreateIncident_Validation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*CreateIncidentInput)
		wantErr error
		wantMsg string
	}{
		{
			name:    "missing name",
			modify:  func(in *CreateIncidentInput) { in.Name = "" },
			wantErr: ErrMissingFields,
			wantMsg: "name",
		},
		{
			name: "missing description and email",
			modify: func(in *CreateIncidentInput) {
				in.Description = " "
				in.Email = ""
			},
			wantErr: ErrMissingFields,
			wantMsg: "description, email",
		},
		{
			name:    "negative sla",
			modify:  func(in *CreateIncidentInput) { in.SLADuration = -time.Second },
			wantErr: ErrInvalidSLA,
		},
		{
			name:    "sla above maximum",
			modify:  func(in *CreateIncidentInput) { in.SLADuration = MaxSLADuration + time.Second },
			wantErr: ErrInvalidSLA,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			scheduler := &mockScheduler{}
			svc := NewService(repo, scheduler)

			input := validInput()
			tt.modify(&input)

			_, err := svc.CreateIncident(context.Background(), input)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}

			assert.Empty(t, repo.incidents)
			assert.Empty(t, scheduler.entries)
		})
	}
}

func TestService_CreateIncident_BlankLogDropped(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	input := validInput()
	blank := "  "
	input.Log = &blank

	incident, err := svc.CreateIncident(context.Background(), input)
	require.NoError(t, err)
	assert.Nil(t, incident.Log)
}

func TestService_CreateIncident_StoreError(t *testing.T) {
	repo := newMockRepository()
	repo.createErr = errors.New("connection refused")
	scheduler := &mockScheduler{}
	svc := NewService(repo, scheduler)

	_, err := svc.CreateIncident(context.Background(), validInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create incident")
	assert.Empty(t, scheduler.entries)
}

func TestService_ListIncidents(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	t.Run("default limit", func(t *testing.T) {
		_, err := svc.ListIncidents(context.Background(), IncidentFilter{})
		require.NoError(t, err)
		assert.Equal(t, DefaultListLimit, repo.lastList.Limit)
	})

	t.Run("limit capped", func(t *testing.T) {
		_, err := svc.ListIncidents(context.Background(), IncidentFilter{Limit: 10000, Offset: -5})
		require.NoError(t, err)
		assert.Equal(t, MaxListLimit, repo.lastList.Limit)
		assert.Equal(t, 0, repo.lastList.Offset)
	})

	t.Run("invalid status", func(t *testing.T) {
		status := domain.IncidentStatus("closed")
		_, err := svc.ListIncidents(context.Background(), IncidentFilter{Status: &status})
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}

func TestService_ResolveIncident(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockScheduler{})

	incident, err := svc.CreateIncident(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.ResolveIncident(context.Background(), incident.ID, "   ")
	require.ErrorIs(t, err, ErrEmptySolution)

	resolved, err := svc.ResolveIncident(context.Background(), incident.ID, "  scaled out  ")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, resolved.Status)
	require.NotNil(t, resolved.Solution)
	assert.Equal(t, "scaled out", *resolved.Solution)

	_, err = svc.ResolveIncident(context.Background(), incident.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	_, err = svc.ResolveIncident(context.Background(), "missing", "fix")
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestService_DeleteIncident(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	incident, err := svc.CreateIncident(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteIncident(context.Background(), incident.ID))

	_, err = svc.GetIncident(context.Background(), incident.ID)
	assert.ErrorIs(t, err, ErrIncidentNotFound)

	assert.ErrorIs(t, svc.DeleteIncident(context.Background(), incident.ID), ErrIncidentNotFound)
}
