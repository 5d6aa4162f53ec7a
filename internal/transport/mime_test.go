package transport

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestBuildMIME_HTMLOnly(t *testing.T) {
	msg := &Message{
		From:     "clerk@example.org",
		FromName: "Records Clerk",
		To:       "archive@example.com",
		Subject:  "정보공개청구 안내",
		HTMLBody: "<p>Hello</p>",
	}

	raw, err := BuildMIME(msg, fixedNow)
	if err != nil {
		t.Fatalf("BuildMIME: %v", err)
	}
	if msg.ID == "" || !strings.HasSuffix(msg.ID, "@example.org") {
		t.Errorf("expected generated Message-ID at sender domain, got %q", msg.ID)
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	if err != nil {
		t.Fatalf("decode subject: %v", err)
	}
	if subject != msg.Subject {
		t.Errorf("Subject = %q, want %q", subject, msg.Subject)
	}
	if got := parsed.Header.Get("Message-ID"); got != "<"+msg.ID+">" {
		t.Errorf("Message-ID = %q", got)
	}
	if !strings.HasPrefix(parsed.Header.Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", parsed.Header.Get("Content-Type"))
	}
	from, err := parsed.Header.AddressList("From")
	if err != nil || len(from) != 1 || from[0].Name != "Records Clerk" {
		t.Errorf("From = %v (err %v)", from, err)
	}
}

func TestBuildMIME_WithAttachments(t *testing.T) {
	content := bytes.Repeat([]byte{0x00, 0xFF, 0x10}, 100)
	msg := &Message{
		ID:       "fixed@example.org",
		From:     "clerk@example.org",
		To:       "archive@example.com",
		Subject:  "Files",
		HTMLBody: "<p>see attached</p>",
		Attachments: []Attachment{
			{Filename: "data.bin", ContentType: "application/octet-stream", Content: content},
			{Filename: "note.txt", Content: []byte("hi")},
		},
	}

	raw, err := BuildMIME(msg, fixedNow)
	if err != nil {
		t.Fatalf("BuildMIME: %v", err)
	}
	if msg.ID != "fixed@example.org" {
		t.Errorf("existing ID overwritten: %q", msg.ID)
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" {
		t.Fatalf("Content-Type = %q (err %v)", parsed.Header.Get("Content-Type"), err)
	}

	mr := multipart.NewReader(parsed.Body, params["boundary"])
	var parts []*multipart.Part
	var bodies [][]byte
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		// NextPart decodes quoted-printable but not base64.
		data, _ := io.ReadAll(p)
		parts = append(parts, p)
		bodies = append(bodies, data)
	}

	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	if string(bodies[0]) != "<p>see attached</p>" {
		t.Errorf("body part = %q", bodies[0])
	}
	if parts[1].FileName() != "data.bin" {
		t.Errorf("attachment filename = %q", parts[1].FileName())
	}
	if !strings.HasPrefix(parts[2].Header.Get("Content-Type"), "application/octet-stream") {
		t.Errorf("default content type = %q", parts[2].Header.Get("Content-Type"))
	}
	for _, line := range strings.Split(strings.TrimSpace(string(bodies[1])), "\r\n") {
		if len(line) > 76 {
			t.Fatalf("base64 line longer than 76 chars: %d", len(line))
		}
	}
}
