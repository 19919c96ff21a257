// Package notifier delivers operator-facing reports and alerts, currently via
// the Telegram Bot API.
package notifier

import "context"

// Notifier pushes a message to the operator channel.
type Notifier interface {
	Send(text string) error
	SendWithRetry(ctx context.Context, text string) error
}

// Noop discards all messages. Used when no Telegram credentials are
// configured and in tests.
type Noop struct{}

func (Noop) Send(string) error                           { return nil }
func (Noop) SendWithRetry(context.Context, string) error { return nil }
