// Package notifier contains the outbound transports used by delivery providers: an SMTP
// mailer, a Twilio text-message client, a chat-app cloud API client and a client for the
// connected-device bridge.
//
// Transports know nothing about recipients, fallback or queues. Each one sends a single
// message to a single address, applies its own rate limit, retries short transient
// failures, and returns the provider-assigned message id. Failures are classified as
// ClientError (permanent), ServerError or RateLimitError (transient) so callers can
// decide whether a queued delivery is worth retrying.
package notifier

import "context"

// Mailer sends electronic mail.
type Mailer interface {
	Configured() bool
	SendMail(ctx context.Context, to, subject, body string) (string, error)
}

// TextSender sends text messages to phone numbers.
type TextSender interface {
	Configured() bool
	SendText(ctx context.Context, to, body string) (string, error)
}

// ChatSender sends chat-app messages through the cloud API using per-event credentials.
type ChatSender interface {
	SendChat(ctx context.Context, creds ChatCredentials, msg ChatMessage) (string, error)
}

// BridgeSender sends chat-app messages through a phone attached to the device bridge.
type BridgeSender interface {
	Configured() bool
	SendViaDevice(ctx context.Context, to, body string) (string, error)
}
