package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	sendgridName            = "sendgrid"
	sendgridDefaultEndpoint = "https://api.sendgrid.com"
	sendgridSendPath        = "/v3/mail/send"
	sendgridScopesPath      = "/v3/scopes"
)

// SendGrid delivers through the SendGrid v3 API with the user's API key.
type SendGrid struct {
	apiKey   string
	endpoint string
	client   HTTPClient
	now      func() time.Time
}

func NewSendGrid(cfg Config, client HTTPClient) *SendGrid {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = sendgridDefaultEndpoint
	}
	return &SendGrid{
		apiKey:   cfg.Secret,
		endpoint: endpoint,
		client:   client,
		now:      time.Now,
	}
}

func (s *SendGrid) Name() string { return sendgridName }

// Send delivers msg via the v3 Mail Send API. The Message-ID header is set by
// us so the logged id is known even when SendGrid omits X-Message-Id.
func (s *SendGrid) Send(ctx context.Context, msg *Message) (*Result, error) {
	if msg.ID == "" {
		msg.ID = NewMessageID(msg.From)
	}
	body, err := json.Marshal(s.buildPayload(msg))
	if err != nil {
		return nil, fmt.Errorf("sendgrid: marshal request: %w", err)
	}

	resp, err := s.client.Do(ctx, &HTTPRequest{
		Method: "POST",
		URL:    s.endpoint + sendgridSendPath,
		Headers: map[string]string{
			"Authorization": "Bearer " + s.apiKey,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return nil, &Error{Transport: sendgridName, Message: "send request: " + err.Error()}
	}

	if e := ClassifyHTTPError(sendgridName, resp.StatusCode, string(resp.Body)); e != nil {
		return nil, e
	}
	return &Result{MessageID: msg.ID, Timestamp: s.now()}, nil
}

// Verify calls the scopes endpoint, which only succeeds for a valid key.
func (s *SendGrid) Verify(ctx context.Context) error {
	resp, err := s.client.Do(ctx, &HTTPRequest{
		Method: "GET",
		URL:    s.endpoint + sendgridScopesPath,
		Headers: map[string]string{
			"Authorization": "Bearer " + s.apiKey,
		},
	})
	if err != nil {
		return &Error{Transport: sendgridName, Message: "verify request: " + err.Error()}
	}
	if e := ClassifyHTTPError(sendgridName, resp.StatusCode, string(resp.Body)); e != nil {
		return e
	}
	return nil
}

type sendgridPayload struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridEmail             `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
	Headers          map[string]string         `json:"headers,omitempty"`
	Attachments      []sendgridAttachment      `json:"attachments,omitempty"`
}

type sendgridPersonalization struct {
	To []sendgridEmail `json:"to"`
}

type sendgridEmail struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendgridAttachment struct {
	Content     string `json:"content"`
	Type        string `json:"type,omitempty"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
}

func (s *SendGrid) buildPayload(msg *Message) sendgridPayload {
	payload := sendgridPayload{
		Personalizations: []sendgridPersonalization{
			{To: []sendgridEmail{{Email: msg.To}}},
		},
		From:    sendgridEmail{Email: msg.From, Name: msg.FromName},
		Subject: msg.Subject,
		Content: []sendgridContent{{Type: "text/html", Value: msg.HTMLBody}},
		Headers: map[string]string{"Message-ID": "<" + msg.ID + ">"},
	}

	for _, att := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, sendgridAttachment{
			Content:     base64.StdEncoding.EncodeToString(att.Content),
			Type:        att.ContentType,
			Filename:    att.Filename,
			Disposition: "attachment",
		})
	}
	return payload
}
