// Package credential stores and resolves each user's mail transport
// credential. Secrets (SMTP passwords, API keys) are sealed at rest with
// NaCl secretbox.
package credential

import (
	"errors"

	"github.com/google/uuid"

	"github.com/sungwon/request-mailer/internal/transport"
)

// ErrNotConfigured is returned when a user has no transport credential.
var ErrNotConfigured = errors.New("mail transport credential not configured")

// Credential is an unsealed per-user transport credential.
type Credential struct {
	UserID      uuid.UUID
	Kind        string
	Host        string
	Port        int
	Username    string
	Secret      string
	FromAddress string
	FromName    string
	UseTLS      bool
}

// TransportConfig merges the credential with process-wide transport
// settings.
func (c Credential) TransportConfig(defaults transport.Config) transport.Config {
	cfg := defaults
	cfg.Kind = c.Kind
	cfg.Host = c.Host
	cfg.Port = c.Port
	cfg.Username = c.Username
	cfg.Secret = c.Secret
	cfg.FromAddress = c.FromAddress
	cfg.FromName = c.FromName
	cfg.UseTLS = c.UseTLS
	return cfg
}
