package notification

import (
	"context"
	"log/slog"
)

const (
	// KindVerificationCode carries a phone verification code.
	KindVerificationCode = "verification_code"
	// KindPasswordReset carries a password reset link.
	KindPasswordReset = "password_reset"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems (SMS, mail).
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger instead of
// delivering them. Bodies are only logged when revealBody is set, which
// development setups use to read verification codes.
type LoggerNotifier struct {
	logger     *slog.Logger
	revealBody bool
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger, revealBody bool) *LoggerNotifier {
	return &LoggerNotifier{logger: logger, revealBody: revealBody}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []any{slog.String("kind", message.Kind), slog.String("destination", message.Destination)}
	if n.revealBody {
		attrs = append(attrs, slog.String("body", message.Body))
	}
	n.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
