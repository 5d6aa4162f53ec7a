package transport

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestStdout_Send(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)

	res, err := s.Send(context.Background(), &Message{
		From:        "clerk@example.org",
		To:          "archive@example.com",
		Subject:     "Hello",
		HTMLBody:    "<p>x</p>",
		Attachments: []Attachment{{Filename: "a.txt", ContentType: "text/plain", Content: []byte("abc")}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.MessageID == "" {
		t.Error("expected a message id")
	}

	out := buf.String()
	for _, want := range []string{"To:      archive@example.com", "Subject: Hello", "a.txt (text/plain, 3 bytes)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if err := s.Verify(context.Background()); err != nil {
		t.Errorf("Verify: %v", err)
	}
}
