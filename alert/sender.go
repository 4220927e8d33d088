package alert

import (
	"context"

	"github.com/google/uuid"
	hclog "github.com/hashicorp/go-hclog"
)

// SendResult is the in-band outcome of one send attempt. Senders never
// return errors out-of-band.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// EmailSender is the only external boundary of the alert engine.
// Implementations deliver a single message and report the outcome
// in-band.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) SendResult
}

// LogSender logs messages instead of delivering them; used by local
// agent runs without a configured provider.
type LogSender struct {
	Log hclog.Logger

	// From is the configured sender address stamped on every message.
	From string
}

// Send satisfies the EmailSender interface.
func (l *LogSender) Send(_ context.Context, to, subject, _ string) SendResult {
	id := uuid.NewString()
	l.Log.Info("would send alert email", "from", l.From, "to", to, "subject", subject, "message_id", id)
	return SendResult{Success: true, MessageID: id}
}
