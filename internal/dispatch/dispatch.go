// Package dispatch runs quota-gated bulk sends: it validates a batch,
// reserves quota, renders and sends per recipient, and records every attempt
// in the delivery log.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/request-mailer/internal/address"
	"github.com/sungwon/request-mailer/internal/credential"
	"github.com/sungwon/request-mailer/internal/deliverylog"
	"github.com/sungwon/request-mailer/internal/events"
	"github.com/sungwon/request-mailer/internal/metrics"
	"github.com/sungwon/request-mailer/internal/quota"
	"github.com/sungwon/request-mailer/internal/registry"
	"github.com/sungwon/request-mailer/internal/render"
	"github.com/sungwon/request-mailer/internal/transport"
)

// DefaultMaxAttachmentBytes is the per-batch attachment ceiling.
const DefaultMaxAttachmentBytes = 2 << 20

// Sender identifies who is dispatching.
type Sender struct {
	UserID     uuid.UUID
	Privileged bool
}

type Batch struct {
	RecipientIDs []int64
	Subject      string
	Body         string
	Meta         render.Meta
	CustomFields map[string]string
	Attachments  []deliverylog.Attachment
}

type ItemResult struct {
	RecipientID int64              `json:"id"`
	Status      deliverylog.Status `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	LogID       int64              `json:"logId,omitempty"`
}

type Result struct {
	Results     []ItemResult `json:"results"`
	Sent        int          `json:"sent"`
	Failed      int          `json:"failed"`
	Aborted     bool         `json:"aborted"`
	AbortReason string       `json:"abortReason,omitempty"`
	// Remaining is the quota balance after commit.
	Remaining int `json:"remaining"`
}

// Ledger is the quota side of a dispatch.
type Ledger interface {
	CheckAndReserve(ctx context.Context, userID uuid.UUID, requested int) (*quota.Reservation, error)
}

// Credentials resolves the per-user mail transport.
type Credentials interface {
	Resolve(ctx context.Context, userID uuid.UUID) (transport.Mailer, credential.Credential, error)
	Invalidate(userID uuid.UUID)
}

// LogStore is the append-only delivery log.
type LogStore interface {
	Append(ctx context.Context, in deliverylog.NewEntry) (deliverylog.Entry, error)
	Get(ctx context.Context, id int64) (deliverylog.Entry, error)
}

type Config struct {
	MaxAttachmentBytes int64
}

type Orchestrator struct {
	ledger      Ledger
	credentials Credentials
	registry    registry.Registry
	logs        LogStore
	events      events.Publisher
	renderer    *render.Renderer
	cfg         Config
	logger      zerolog.Logger
}

func NewOrchestrator(
	ledger Ledger,
	credentials Credentials,
	reg registry.Registry,
	logs LogStore,
	publisher events.Publisher,
	renderer *render.Renderer,
	cfg Config,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	if renderer == nil {
		renderer = render.New()
	}
	return &Orchestrator{
		ledger:      ledger,
		credentials: credentials,
		registry:    reg,
		logs:        logs,
		events:      publisher,
		renderer:    renderer,
		cfg:         cfg,
		logger:      logger,
	}
}

// Dispatch sends batch on behalf of sender. Batch-level failures are returned
// as errors before any recipient is touched; recipient-level failures are
// reported in the Result. The run is detached from ctx cancellation so a
// client disconnect cannot leave a half-recorded batch.
func (o *Orchestrator) Dispatch(ctx context.Context, sender Sender, batch Batch) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	log := o.logger.With().Stringer("user_id", sender.UserID).Logger()

	if len(batch.RecipientIDs) == 0 {
		metrics.DispatchBatchesTotal.WithLabelValues("rejected").Inc()
		return nil, ErrNoRecipients
	}
	if strings.TrimSpace(batch.Subject) == "" || strings.TrimSpace(batch.Body) == "" {
		metrics.DispatchBatchesTotal.WithLabelValues("rejected").Inc()
		return nil, ErrMissingContent
	}

	mailer, cred, err := o.resolve(ctx, sender.UserID)
	if err != nil {
		metrics.DispatchBatchesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	res, err := o.ledger.CheckAndReserve(ctx, sender.UserID, len(batch.RecipientIDs))
	if err != nil {
		metrics.DispatchBatchesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	// no-op once committed
	defer res.Release()

	atts, err := o.prepareAttachments(batch.Attachments)
	if err != nil {
		metrics.DispatchBatchesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if err := mailer.Verify(ctx); err != nil {
		o.credentials.Invalidate(sender.UserID)
		metrics.DispatchBatchesTotal.WithLabelValues("rejected").Inc()
		log.Warn().Err(err).Str("transport", mailer.Name()).Msg("credential verification failed")
		return nil, &CredentialError{Err: err}
	}

	log.Info().
		Int("recipients", len(batch.RecipientIDs)).
		Int("attachments", len(atts)).
		Str("transport", mailer.Name()).
		Msg("dispatch started")

	result := &Result{Results: make([]ItemResult, 0, len(batch.RecipientIDs))}
	run := &batchRun{
		o:      o,
		sender: sender,
		batch:  batch,
		mailer: mailer,
		cred:   cred,
		atts:   atts,
		log:    log,
	}

	for _, id := range batch.RecipientIDs {
		item, sent, authErr := run.deliver(ctx, id)
		result.Results = append(result.Results, item)
		if sent {
			result.Sent++
		}
		if item.Status == deliverylog.StatusFailed {
			result.Failed++
		}
		if authErr != nil {
			o.credentials.Invalidate(sender.UserID)
			result.Aborted = true
			result.AbortReason = fmt.Sprintf("%s: %v", ReasonCredentialFailed, authErr)
			log.Warn().Err(authErr).
				Int64("recipient_id", id).
				Int("unattempted", len(batch.RecipientIDs)-len(result.Results)).
				Msg("dispatch aborted on transport authentication failure")
			break
		}
	}

	st, err := res.Commit(ctx, result.Sent)
	if err != nil {
		// mail already went out; surface the result and log the ledger error
		log.Error().Err(err).Int("sent", result.Sent).Msg("failed to commit quota")
		st = res.State
		st.Remaining = max(st.Remaining-result.Sent, 0)
	}
	result.Remaining = st.Remaining

	outcome := "completed"
	if result.Aborted {
		outcome = "aborted"
	}
	metrics.DispatchBatchesTotal.WithLabelValues(outcome).Inc()
	log.Info().
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Bool("aborted", result.Aborted).
		Int("remaining", result.Remaining).
		Msg("dispatch finished")

	return result, nil
}

func (o *Orchestrator) resolve(ctx context.Context, userID uuid.UUID) (transport.Mailer, credential.Credential, error) {
	mailer, cred, err := o.credentials.Resolve(ctx, userID)
	if errors.Is(err, credential.ErrNotConfigured) {
		return nil, credential.Credential{}, ErrNoCredential
	}
	if err != nil {
		return nil, credential.Credential{}, fmt.Errorf("resolve mail transport: %w", err)
	}
	return mailer, cred, nil
}

// prepareAttachments enforces the size ceiling on the encoded size, then
// decodes every file once for the whole batch.
func (o *Orchestrator) prepareAttachments(in []deliverylog.Attachment) ([]transport.Attachment, error) {
	if total := deliverylog.TotalSize(in); total > o.cfg.MaxAttachmentBytes {
		return nil, &AttachmentsTooLargeError{Total: total, Limit: o.cfg.MaxAttachmentBytes}
	}
	return decodeAttachments(in)
}

func decodeAttachments(in []deliverylog.Attachment) ([]transport.Attachment, error) {
	out := make([]transport.Attachment, 0, len(in))
	for _, a := range in {
		if strings.TrimSpace(a.Filename) == "" {
			return nil, fmt.Errorf("%w: missing filename", ErrInvalidAttachment)
		}
		data, err := a.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, transport.Attachment{
			Filename:    a.Filename,
			ContentType: deliverylog.ResolveContentType(a, data),
			Content:     data,
		})
	}
	return out, nil
}

type batchRun struct {
	o      *Orchestrator
	sender Sender
	batch  Batch
	mailer transport.Mailer
	cred   credential.Credential
	atts   []transport.Attachment
	log    zerolog.Logger
}

// deliver handles one recipient. sent reports a successful transport send;
// authErr is non-nil when the transport rejected the credential.
func (r *batchRun) deliver(ctx context.Context, recipientID int64) (item ItemResult, sent bool, authErr error) {
	o := r.o
	log := r.log.With().Int64("recipient_id", recipientID).Logger()

	if !r.sender.Privileged {
		ok, err := o.registry.IsAssigned(ctx, r.sender.UserID, recipientID)
		if err != nil {
			log.Error().Err(err).Msg("assignment lookup failed")
			return r.fail(ctx, recipientID, "", err.Error()), false, nil
		}
		if !ok {
			return r.fail(ctx, recipientID, "", ReasonNotAuthorized), false, nil
		}
	}

	rcpt, err := o.registry.Recipient(ctx, recipientID)
	if errors.Is(err, registry.ErrRecipientNotFound) {
		return r.fail(ctx, recipientID, "", ReasonNotFound), false, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("recipient lookup failed")
		return r.fail(ctx, recipientID, "", err.Error()), false, nil
	}

	to, addrErr := address.Validate(rcpt.Email)
	if addrErr != nil {
		to = strings.TrimSpace(rcpt.Email)
	}

	fields := render.Fields{Name: rcpt.Name, Category: rcpt.Category, Email: to, Request: rcpt.Request}
	subject := o.renderer.RenderSubject(r.batch.Subject, fields, r.batch.Meta, r.batch.CustomFields)
	body := o.renderer.Render(r.batch.Body, fields, r.batch.Meta, r.batch.CustomFields)

	if addrErr != nil {
		// keep the rendered content so the entry can be retried once the
		// address is fixed
		metrics.DeliveryAttemptsTotal.WithLabelValues(string(deliverylog.StatusFailed), r.mailer.Name()).Inc()
		return r.record(ctx, deliverylog.NewEntry{
			UserID:         r.sender.UserID,
			RecipientID:    recipientID,
			RecipientEmail: to,
			Subject:        subject,
			Body:           body,
			Status:         deliverylog.StatusFailed,
			Error:          ReasonInvalidAddress,
			Attachments:    r.batch.Attachments,
		}), false, nil
	}

	out, sendErr := o.send(ctx, r.mailer, r.cred, to, subject, body, r.atts)
	entry := deliverylog.NewEntry{
		UserID:         r.sender.UserID,
		RecipientID:    recipientID,
		RecipientEmail: to,
		Subject:        subject,
		Body:           body,
		Attachments:    r.batch.Attachments,
	}

	if sendErr != nil {
		entry.Status = deliverylog.StatusFailed
		entry.Error = sendErr.Error()
		if transport.IsAuthFailure(sendErr) {
			authErr = sendErr
		}
		log.Warn().Err(sendErr).Bool("auth_failure", authErr != nil).Msg("send failed")
		return r.record(ctx, entry), false, authErr
	}

	if err := o.registry.IncrementSentCount(ctx, recipientID); err != nil {
		log.Error().Err(err).Msg("failed to increment sent count")
	}
	entry.Status = deliverylog.StatusSuccess
	if out != nil {
		entry.TransportMessageID = out.MessageID
	}
	log.Debug().Str("transport_message_id", entry.TransportMessageID).Msg("delivered")
	return r.record(ctx, entry), true, nil
}

// fail records a failed entry for a recipient that was never sent to.
func (r *batchRun) fail(ctx context.Context, recipientID int64, email, reason string) ItemResult {
	metrics.DeliveryAttemptsTotal.WithLabelValues(string(deliverylog.StatusFailed), r.mailer.Name()).Inc()
	return r.record(ctx, deliverylog.NewEntry{
		UserID:         r.sender.UserID,
		RecipientID:    recipientID,
		RecipientEmail: email,
		Status:         deliverylog.StatusFailed,
		Error:          reason,
	})
}

// record appends and publishes the entry. A failed append is reported as a
// failed item and nothing is published.
func (r *batchRun) record(ctx context.Context, in deliverylog.NewEntry) ItemResult {
	item := ItemResult{RecipientID: in.RecipientID, Status: in.Status, Reason: in.Error}
	e, err := r.o.logs.Append(ctx, in)
	if err != nil {
		r.log.Error().Err(err).Int64("recipient_id", in.RecipientID).Msg("failed to write delivery log")
		item.Status = deliverylog.StatusFailed
		item.Reason = fmt.Sprintf("%s: %v", ReasonLogWriteFailed, err)
		return item
	}
	item.LogID = e.ID
	r.o.events.Publish(e)
	return item
}

// send performs one transport call and records attempt metrics.
func (o *Orchestrator) send(
	ctx context.Context,
	mailer transport.Mailer,
	cred credential.Credential,
	to, subject, body string,
	atts []transport.Attachment,
) (*transport.Result, error) {
	msg := &transport.Message{
		From:        cred.FromAddress,
		FromName:    cred.FromName,
		To:          to,
		Subject:     subject,
		HTMLBody:    body,
		Attachments: atts,
	}

	start := time.Now()
	out, err := mailer.Send(ctx, msg)
	metrics.SendDuration.WithLabelValues(mailer.Name()).Observe(time.Since(start).Seconds())

	status := deliverylog.StatusSuccess
	if err != nil {
		status = deliverylog.StatusFailed
	}
	metrics.DeliveryAttemptsTotal.WithLabelValues(string(status), mailer.Name()).Inc()
	return out, err
}
