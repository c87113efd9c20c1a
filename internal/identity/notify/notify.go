// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

/*
Package notify defines the outbound notification boundary for the identity
workflows.

Onboarding hands single-use tokens to the account holder through this
interface. The default implementation logs delivery intents; production
deployments plug in the transactional mail provider behind the same
interface.
*/
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Notifier delivers onboarding messages to an account holder.
//
// Implementations must not log or persist the raw token anywhere the
// recipient cannot see; the token is equivalent to a temporary credential.
type Notifier interface {
	// SendVerification delivers the email-verification link for a new
	// self-service registration.
	SendVerification(ctx context.Context, email, username, token string, expiresAt time.Time) error

	// SendInvitation delivers an admin-issued invitation link.
	SendInvitation(ctx context.Context, email, role, token string, expiresAt time.Time) error
}

// LogNotifier writes delivery intents to the structured log instead of
// sending mail. Used in development and as the fallback when no mail
// provider is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a [LogNotifier].
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (notifier *LogNotifier) SendVerification(_ context.Context, email, username, token string, expiresAt time.Time) error {
	notifier.logger.Info("verification mail intent",
		slog.String("email", email),
		slog.String("username", username),
		slog.String("token", token),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

func (notifier *LogNotifier) SendInvitation(_ context.Context, email, role, token string, expiresAt time.Time) error {
	notifier.logger.Info("invitation mail intent",
		slog.String("email", email),
		slog.String("role", role),
		slog.String("token", token),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}
