// Package mail defines the outbound mail collaborator of the credential
// lifecycle and an asynchronous dispatcher that keeps delivery off the
// request path.
package mail

import (
	"context"
	"log/slog"
)

// Mailer delivers the messages the self-service flows and reuse detection
// produce. Implementations may block on the network.
type Mailer interface {
	SendAccountVerify(ctx context.Context, email, link string) error
	SendPasswordReset(ctx context.Context, email, link string) error
	SendPasswordRecover(ctx context.Context, email, link, tempPassword string) error
	SendReuseAlert(ctx context.Context, email string, accountLocked bool) error
}

// LogMailer logs messages instead of sending them. Links and temporary
// passwords are not logged.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m LogMailer) SendAccountVerify(ctx context.Context, email, _ string) error {
	m.logger().InfoContext(ctx, "mail not sent: no smtp configured", "kind", "account_verify", "to", email)
	return nil
}

func (m LogMailer) SendPasswordReset(ctx context.Context, email, _ string) error {
	m.logger().InfoContext(ctx, "mail not sent: no smtp configured", "kind", "password_reset", "to", email)
	return nil
}

func (m LogMailer) SendPasswordRecover(ctx context.Context, email, _, _ string) error {
	m.logger().InfoContext(ctx, "mail not sent: no smtp configured", "kind", "password_recover", "to", email)
	return nil
}

func (m LogMailer) SendReuseAlert(ctx context.Context, email string, accountLocked bool) error {
	m.logger().WarnContext(ctx, "mail not sent: no smtp configured", "kind", "reuse_alert", "to", email, "account_locked", accountLocked)
	return nil
}
