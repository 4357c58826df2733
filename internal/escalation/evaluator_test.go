package escalation

import (
	"testing"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestIsOverdue(t *testing.T) {
	tests := []struct {
		name     string
		incident *domain.Incident
		want     bool
	}{
		{
			name:     "deleted incident",
			incident: nil,
			want:     false,
		},
		{
			name:     "open and not notified",
			incident: &domain.Incident{Status: domain.IncidentStatusOpen},
			want:     true,
		},
		{
			name:     "open and already notified",
			incident: &domain.Incident{Status: domain.IncidentStatusOpen, Notified: true},
			want:     false,
		},
		{
			name:     "resolved",
			incident: &domain.Incident{Status: domain.IncidentStatusResolved},
			want:     false,
		},
		{
			name:     "resolved after notification",
			incident: &domain.Incident{Status: domain.IncidentStatusResolved, Notified: true},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOverdue(tt.incident))
		})
	}
}
