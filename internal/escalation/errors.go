package escalation

import "errors"

// Dispatch errors.
var (
	// ErrSendFailed is returned when the mailer rejected or failed to deliver
	// the escalation email. The incident stays un-notified and is not retried.
	ErrSendFailed = errors.New("escalation email send failed")

	// ErrStoreWrite is returned when the email was delivered but the incident
	// could not be marked as notified.
	ErrStoreWrite = errors.New("escalation delivered but notified flag not recorded")
)
