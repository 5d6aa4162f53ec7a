package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Kinds of transport credential.
const (
	KindSMTP     = "smtp"
	KindSendGrid = "sendgrid"
	KindStdout   = "stdout"
)

// Config is a resolved, unsealed transport credential plus process-wide
// transport settings.
type Config struct {
	Kind        string
	Host        string
	Port        int
	Username    string
	Secret      string
	FromAddress string
	FromName    string
	UseTLS      bool

	InsecureSkipVerify bool
	HeloName           string
	Timeout            time.Duration
	// Endpoint overrides the API base URL of HTTP transports.
	Endpoint string
}

const defaultTimeout = 30 * time.Second

// Validate checks that required fields are set for the kind.
func (c *Config) Validate() error {
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.FromAddress == "" && c.Kind != KindStdout {
		return errors.New("from address is required")
	}

	switch c.Kind {
	case KindSMTP:
		if c.Host == "" {
			return errors.New("smtp: host is required")
		}
	case KindSendGrid:
		if c.Secret == "" {
			return errors.New("sendgrid: api key is required")
		}
	case KindStdout:
	case "":
		return errors.New("transport kind is required")
	default:
		return fmt.Errorf("unsupported transport kind: %s", c.Kind)
	}
	return nil
}

// New builds the Mailer for cfg. client is only used by HTTP transports.
func New(cfg Config, client HTTPClient, logger zerolog.Logger) (Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}

	switch cfg.Kind {
	case KindSMTP:
		return NewSMTP(cfg, logger), nil
	case KindSendGrid:
		if client == nil {
			client = NewHTTPClient(cfg.Timeout)
		}
		return NewSendGrid(cfg, client), nil
	default:
		return NewStdout(nil), nil
	}
}
