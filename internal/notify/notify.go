// Package notify surfaces execution-stage alerts to an operator.
package notify

import "context"

// Notifier delivers an alert. Failures to deliver are the caller's to
// log; alerting must never block a trading operation indefinitely.
type Notifier interface {
	Alert(ctx context.Context, subject, body string) error
}

// Noop discards all alerts. Used when no channel is configured.
type Noop struct{}

func (Noop) Alert(context.Context, string, string) error { return nil }
