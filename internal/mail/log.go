package mail

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of sending them. Used in
// development when no SMTP relay is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger means slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if _, _, err := msg.validate(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "mail not sent (no SMTP configured)",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.HTMLBody,
	)
	return nil
}
