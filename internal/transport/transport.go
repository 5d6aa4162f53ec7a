// Package transport delivers rendered messages through a per-user mail
// transport. Every transport exposes the same narrow contract: Verify performs
// a lightweight credential handshake and Send delivers one message.
package transport

import (
	"context"
	"time"
)

// Mailer is implemented by every transport kind.
type Mailer interface {
	// Verify checks that the configured credential is accepted.
	Verify(ctx context.Context) error
	// Send delivers msg and returns the transport's message id.
	Send(ctx context.Context, msg *Message) (*Result, error)
	// Name returns the transport kind ("smtp", "sendgrid", "stdout").
	Name() string
}

// Message is one rendered email for a single recipient.
type Message struct {
	// ID is the RFC 5322 Message-ID without angle brackets. Generated when
	// empty.
	ID          string
	From        string
	FromName    string
	To          string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment is a decoded file attached to a Message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Result contains the outcome of a successful send.
type Result struct {
	MessageID string
	Timestamp time.Time
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a transport API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}
