package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
)

const smtpName = "smtp"

// SMTP delivers through a user's own mailbox account. Port 465 uses implicit
// TLS; other ports upgrade with STARTTLS when UseTLS is set.
type SMTP struct {
	host      string
	port      int
	username  string
	password  string
	useTLS    bool
	heloName  string
	timeout   time.Duration
	tlsConfig *tls.Config
	dial      func(ctx context.Context, network, addr string) (net.Conn, error)
	now       func() time.Time
	logger    zerolog.Logger
}

func NewSMTP(cfg Config, logger zerolog.Logger) *SMTP {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	helo := cfg.HeloName
	if helo == "" {
		helo = "localhost"
	}
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	return &SMTP{
		host:      cfg.Host,
		port:      port,
		username:  cfg.Username,
		password:  cfg.Secret,
		useTLS:    cfg.UseTLS,
		heloName:  helo,
		timeout:   cfg.Timeout,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12, InsecureSkipVerify: cfg.InsecureSkipVerify},
		dial:      dialer.DialContext,
		now:       time.Now,
		logger:    logger.With().Str("transport", smtpName).Str("host", cfg.Host).Logger(),
	}
}

func (s *SMTP) Name() string { return smtpName }

// Verify connects, authenticates and quits without sending.
func (s *SMTP) Verify(ctx context.Context) error {
	c, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Quit(); err != nil {
		s.logger.Debug().Err(err).Msg("quit after verify failed")
	}
	return nil
}

// Send delivers msg in its own session.
func (s *SMTP) Send(ctx context.Context, msg *Message) (*Result, error) {
	now := s.now()
	raw, err := BuildMIME(msg, now)
	if err != nil {
		return nil, fmt.Errorf("smtp: build message: %w", err)
	}

	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := c.SendMail(msg.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return nil, ClassifySMTPError(smtpName, err)
	}
	if err := c.Quit(); err != nil {
		s.logger.Debug().Err(err).Str("message_id", msg.ID).Msg("quit after send failed")
	}

	return &Result{MessageID: msg.ID, Timestamp: now}, nil
}

func (s *SMTP) connect(ctx context.Context) (*gosmtp.Client, error) {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Transport: smtpName, Message: fmt.Sprintf("dial %s: %v", addr, err)}
	}

	if deadline, ok := s.deadline(ctx); ok {
		_ = conn.SetDeadline(deadline)
	}

	if s.port == 465 {
		conn = tls.Client(conn, s.tlsConfig)
	}

	c := gosmtp.NewClient(conn)
	if err := c.Hello(s.heloName); err != nil {
		c.Close()
		return nil, ClassifySMTPError(smtpName, err)
	}

	if s.useTLS && s.port != 465 {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			c.Close()
			return nil, &Error{Transport: smtpName, Message: "server does not support STARTTLS", Permanent: true}
		}
		if err := c.StartTLS(s.tlsConfig); err != nil {
			c.Close()
			return nil, ClassifySMTPError(smtpName, err)
		}
	}

	if s.username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			c.Close()
			return nil, ClassifySMTPError(smtpName, ErrAuthUnsupported)
		}
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			c.Close()
			return nil, ClassifySMTPError(smtpName, authError(err))
		}
	}

	return c, nil
}

// deadline is the earlier of the context deadline and the configured
// session timeout.
func (s *SMTP) deadline(ctx context.Context) (time.Time, bool) {
	d, ok := ctx.Deadline()
	if s.timeout > 0 {
		t := time.Now().Add(s.timeout)
		if !ok || t.Before(d) {
			return t, true
		}
	}
	return d, ok
}

// authError keeps SMTP reply codes but marks bare client-side failures
// during AUTH as credential errors.
func authError(err error) error {
	var se *gosmtp.SMTPError
	if errors.As(err, &se) {
		return err
	}
	return &Error{Transport: smtpName, Message: "auth: " + err.Error(), Auth: true, Permanent: true}
}
