// Package email provides email sending functionality for Kinship.
//
// This package defines an EmailService interface with implementations for:
// - SMTP (Mailhog in development, any SMTP relay in production)
// - Log (no SMTP configured; messages are only logged)
package email

import (
	"context"
	"log/slog"
)

// =============================================================================
// Interface Definition
// =============================================================================

// EmailService defines the interface for sending notification emails.
//
// All methods are context-aware for timeout and cancellation support.
type EmailService interface {
	// SendNotice sends a short notification to a user.
	// Parameters:
	// - to: Recipient email address
	// - name: Recipient's name for personalization
	// - notice: What happened and where to look
	SendNotice(ctx context.Context, to, name string, notice Notice) error
}

// =============================================================================
// Email Data Types
// =============================================================================

// Notice is the content of a notification email.
type Notice struct {
	Subject string
	Heading string
	Body    string
	// Path is appended to the base URL to build the call-to-action link.
	// Empty means no link.
	Path string
}

// Email represents a single email message.
type Email struct {
	To       string // Recipient email address
	Subject  string // Email subject line
	HTMLBody string // HTML content of the email
	TextBody string // Plain text fallback content
}

// =============================================================================
// Configuration Types
// =============================================================================

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname (e.g., "localhost" for Mailhog)
	Port     int    // SMTP server port (e.g., 1025 for Mailhog)
	Username string // SMTP authentication username (empty for Mailhog)
	Password string // SMTP authentication password (empty for Mailhog)
	From     string // Default sender email address
	FromName string // Default sender display name
}

// =============================================================================
// Common Constants
// =============================================================================

const (
	// DefaultFromEmail is the default sender email for notifications.
	DefaultFromEmail = "noreply@kinship.app"

	// DefaultFromName is the default sender display name.
	DefaultFromName = "Kinship"
)

// =============================================================================
// Log Email Service
// =============================================================================

// LogEmailService logs notices instead of sending them.
type LogEmailService struct {
	logger *slog.Logger
}

// NewLogEmailService creates a LogEmailService.
func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

// SendNotice implements EmailService.
func (s *LogEmailService) SendNotice(ctx context.Context, to, name string, notice Notice) error {
	s.logger.Info("email not sent, no SMTP host configured",
		"to", to,
		"subject", notice.Subject,
	)
	return nil
}

var _ EmailService = (*LogEmailService)(nil)
