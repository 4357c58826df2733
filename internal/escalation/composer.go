package escalation

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Composer defaults.
const (
	DefaultTemplateName = "overdue_incident"
	DefaultSubject      = "Overdue Incident Notification"

	// missingValue is rendered in place of optional fields that are not set.
	missingValue = "N/A"
)

const defaultBodyTemplate = `Unresolved Incident

ID: {{ .ID }}
Name: {{ .Name }}
Description: {{ .Description }}
Status: {{ title .Status }}
Log: {{ .Log }}
SLA: {{ formatDuration .SLA }}
Created at: {{ formatTime .CreatedAt }}
Deadline: {{ formatTime .Deadline }}
`

// ComposerConfig selects the notification templates.
type ComposerConfig struct {
	// TemplateName picks the body template from Templates.
	TemplateName string
	// Templates holds named body templates loaded at startup.
	Templates map[string]string
	// Subject is a template for the email subject line.
	Subject string
}

// EmailData is the view of an incident exposed to templates.
type EmailData struct {
	ID          string
	Name        string
	Description string
	Log         string
	Email       string
	Status      string
	SLA         time.Duration
	CreatedAt   time.Time
	Deadline    time.Time
}

// Composer renders escalation emails from templates.
type Composer struct {
	subject *template.Template
	body    *template.Template
}

// NewComposer parses the configured templates.
// Falls back to the built-in body template when the named template is unset.
func NewComposer(config ComposerConfig) (*Composer, error) {
	funcMap := template.FuncMap{
		"title":          titleCase,
		"upper":          strings.ToUpper,
		"lower":          strings.ToLower,
		"formatTime":     formatTime,
		"formatDuration": formatDuration,
	}

	name := config.TemplateName
	if name == "" {
		name = DefaultTemplateName
	}

	source, ok := config.Templates[name]
	if !ok || strings.TrimSpace(source) == "" {
		if config.TemplateName != "" && config.TemplateName != DefaultTemplateName {
			slog.Warn("escalation template not found, using built-in default", "template", config.TemplateName)
		}
		source = defaultBodyTemplate
	}

	body, err := template.New(name).Funcs(funcMap).Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}

	subjectSource := config.Subject
	if subjectSource == "" {
		subjectSource = DefaultSubject
	}

	subject, err := template.New("subject").Funcs(funcMap).Parse(subjectSource)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}

	return &Composer{subject: subject, body: body}, nil
}

// Render produces the subject and body for an incident.
func (c *Composer) Render(incident *domain.Incident) (subject, body string, err error) {
	data := newEmailData(incident)

	var buf bytes.Buffer
	if err := c.subject.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("execute subject template: %w", err)
	}
	// Header injection guard: a subject must stay on one line.
	subject = strings.Join(strings.Fields(buf.String()), " ")

	buf.Reset()
	if err := c.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", c.body.Name(), err)
	}

	return subject, buf.String(), nil
}

func newEmailData(incident *domain.Incident) EmailData {
	logText := missingValue
	if incident.Log != nil && strings.TrimSpace(*incident.Log) != "" {
		logText = *incident.Log
	}

	return EmailData{
		ID:          incident.ID,
		Name:        incident.Name,
		Description: incident.Description,
		Log:         logText,
		Email:       incident.Email,
		Status:      string(incident.Status),
		SLA:         incident.SLADuration,
		CreatedAt:   incident.CreatedAt,
		Deadline:    incident.Deadline(),
	}
}

// Template functions

// Casers are stateful, so each call gets its own; Render runs on many workers.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return missingValue
	}
	return t.UTC().Format("Jan 2, 2006 15:04:05 UTC")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", minutes)
}
