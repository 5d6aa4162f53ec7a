package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Stdout writes messages to a writer instead of delivering them. Intended
// for development.
type Stdout struct {
	mu     sync.Mutex
	writer io.Writer
	now    func() time.Time
}

func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{writer: w, now: time.Now}
}

func (s *Stdout) Name() string { return "stdout" }

func (s *Stdout) Verify(context.Context) error { return nil }

func (s *Stdout) Send(_ context.Context, msg *Message) (*Result, error) {
	if msg.ID == "" {
		msg.ID = NewMessageID(msg.From)
	}

	var b strings.Builder
	b.WriteString("--- stdout transport: message ---\n")
	fmt.Fprintf(&b, "ID:      %s\n", msg.ID)
	fmt.Fprintf(&b, "From:    %s\n", msg.From)
	fmt.Fprintf(&b, "To:      %s\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	for _, att := range msg.Attachments {
		fmt.Fprintf(&b, "Attach:  %s (%s, %d bytes)\n", att.Filename, att.ContentType, len(att.Content))
	}
	fmt.Fprintf(&b, "Body:    (%d bytes)\n", len(msg.HTMLBody))
	b.WriteString("--- end ---\n")

	s.mu.Lock()
	_, err := io.WriteString(s.writer, b.String())
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("stdout: write: %w", err)
	}

	return &Result{MessageID: msg.ID, Timestamp: s.now()}, nil
}
