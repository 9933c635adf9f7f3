// Package notify delivers verification and reset tokens.
package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes tokens to the log. It stands in for an email sender in
// local mode.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerification(ctx context.Context, email, token string) error {
	n.logger.InfoContext(ctx, "verification token issued", "email", email, "token", token)
	return nil
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	n.logger.InfoContext(ctx, "password reset token issued", "email", email, "token", token)
	return nil
}
