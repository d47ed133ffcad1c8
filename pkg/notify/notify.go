// Package notify delivers out-of-band notifications (email/SMS) to users.
// The registration-acceptance flow is its only caller; session teardown never
// goes through here.
package notify

import "log/slog"

// Notifier sends a message to whichever of the destination contacts are set.
// Delivery is best-effort; callers treat failures as non-fatal.
type Notifier interface {
	Notify(message, email, phone string) error
}

// LogNotifier writes notifications to the structured log instead of
// delivering them. It is the default when no mail/SMS gateway is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(message, email, phone string) error {
	slog.Info("notification", "message", message, "email", email, "phone", phone)
	return nil
}
