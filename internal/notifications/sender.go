// Package notifications defines the outbound notification contract used by escalation.
package notifications

import "context"

// Notification is a single message addressed to one recipient.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a notification synchronously.
// Send returns only after the message was accepted by the transport or failed.
type Sender interface {
	Send(ctx context.Context, notification Notification) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, notification Notification) error

// Send calls f(ctx, notification).
func (f SenderFunc) Send(ctx context.Context, notification Notification) error {
	return f(ctx, notification)
}
