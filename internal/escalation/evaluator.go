package escalation

import "github.com/bissquit/incident-escalator/internal/domain"

// IsOverdue reports whether an incident still qualifies for escalation.
//
// A nil incident means the record no longer exists. The function does not
// compare the deadline against the clock: it is only ever called by the
// scheduler once the deadline has passed, so elapsed time is enforced by when
// it runs rather than by a field comparison here.
func IsOverdue(incident *domain.Incident) bool {
	if incident == nil {
		return false
	}
	return incident.Status == domain.IncidentStatusOpen && !incident.Notified
}
