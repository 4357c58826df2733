package escalation

import (
	"testing"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIncident() *domain.Incident {
	logText := "OOM killer invoked"
	return &domain.Incident{
		ID:          "3f1c2b9e-8f1a-4a5e-9d0c-1b2a3c4d5e6f",
		Name:        "payments-api down",
		Description: "502 from load balancer",
		Log:         &logText,
		Email:       "oncall@example.com",
		SLADuration: 90 * time.Minute,
		Status:      domain.IncidentStatusOpen,
		CreatedAt:   time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestNewComposer_Default(t *testing.T) {
	c, err := NewComposer(ComposerConfig{})
	require.NoError(t, err)

	subject, body, err := c.Render(testIncident())
	require.NoError(t, err)

	assert.Equal(t, DefaultSubject, subject)
	assert.Contains(t, body, "Unresolved Incident")
	assert.Contains(t, body, "ID: 3f1c2b9e-8f1a-4a5e-9d0c-1b2a3c4d5e6f")
	assert.Contains(t, body, "Name: payments-api down")
	assert.Contains(t, body, "Description: 502 from load balancer")
	assert.Contains(t, body, "Status: Open")
	assert.Contains(t, body, "Log: OOM killer invoked")
	assert.Contains(t, body, "SLA: 1h 30m")
	assert.Contains(t, body, "Created at: Jan 15, 2026 10:30:00 UTC")
	assert.Contains(t, body, "Deadline: Jan 15, 2026 12:00:00 UTC")
}

func TestComposer_MissingLogRendersNA(t *testing.T) {
	c, err := NewComposer(ComposerConfig{})
	require.NoError(t, err)

	tests := []struct {
		name string
		log  *string
	}{
		{name: "nil log", log: nil},
		{name: "blank log", log: ptr("   ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			incident := testIncident()
			incident.Log = tt.log

			_, body, err := c.Render(incident)
			require.NoError(t, err)
			assert.Contains(t, body, "Log: N/A")
		})
	}
}

func TestComposer_NamedTemplate(t *testing.T) {
	c, err := NewComposer(ComposerConfig{
		TemplateName: "short",
		Templates: map[string]string{
			"short":             "{{ upper .Name }} breached {{ formatDuration .SLA }} SLA",
			DefaultTemplateName: "unused",
		},
		Subject: "[SLA] {{ .Name }}",
	})
	require.NoError(t, err)

	subject, body, err := c.Render(testIncident())
	require.NoError(t, err)

	assert.Equal(t, "[SLA] payments-api down", subject)
	assert.Equal(t, "PAYMENTS-API DOWN breached 1h 30m SLA", body)
}

func TestComposer_DefaultNameFromTemplates(t *testing.T) {
	c, err := NewComposer(ComposerConfig{
		Templates: map[string]string{DefaultTemplateName: "custom {{ .Email }}"},
	})
	require.NoError(t, err)

	_, body, err := c.Render(testIncident())
	require.NoError(t, err)
	assert.Equal(t, "custom oncall@example.com", body)
}

func TestComposer_UnknownTemplateFallsBack(t *testing.T) {
	c, err := NewComposer(ComposerConfig{TemplateName: "missing"})
	require.NoError(t, err)

	_, body, err := c.Render(testIncident())
	require.NoError(t, err)
	assert.Contains(t, body, "Unresolved Incident")
}

func TestComposer_InvalidTemplate(t *testing.T) {
	_, err := NewComposer(ComposerConfig{
		TemplateName: "broken",
		Templates:    map[string]string{"broken": "{{ .Name "},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse template broken")

	_, err = NewComposer(ComposerConfig{Subject: "{{ if }}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse subject template")
}

func TestComposer_ExecuteError(t *testing.T) {
	c, err := NewComposer(ComposerConfig{
		TemplateName: "bad",
		Templates:    map[string]string{"bad": "{{ .Unknown }}"},
	})
	require.NoError(t, err)

	_, _, err = c.Render(testIncident())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute template bad")
}

func TestComposer_SubjectIsSingleLine(t *testing.T) {
	c, err := NewComposer(ComposerConfig{Subject: "Overdue: {{ .Name }}"})
	require.NoError(t, err)

	incident := testIncident()
	incident.Name = "db\r\nBcc: attacker@example.com"

	subject, _, err := c.Render(incident)
	require.NoError(t, err)
	assert.NotContains(t, subject, "\n")
	assert.NotContains(t, subject, "\r")
	assert.Equal(t, "Overdue: db Bcc: attacker@example.com", subject)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "N/A", formatTime(time.Time{}))

	local := time.Date(2026, 1, 15, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "Jan 15, 2026 11:00:00 UTC", formatTime(local))
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Resolved", titleCase("resolved"))
	assert.Equal(t, "", titleCase(""))
}

func ptr(s string) *string {
	return &s
}
