package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sungwon/request-mailer/internal/address"
	"github.com/sungwon/request-mailer/internal/deliverylog"
	"github.com/sungwon/request-mailer/internal/metrics"
	"github.com/sungwon/request-mailer/internal/registry"
	"github.com/sungwon/request-mailer/internal/transport"
)

// Retry resends a historical entry's rendered content and attachment
// snapshot to the recipient's current address, from the caller's mailbox.
// The new entry points back at the original via RetryOfID. Retries do not
// consume quota.
func (o *Orchestrator) Retry(ctx context.Context, caller Sender, logID int64) (deliverylog.Entry, error) {
	ctx = context.WithoutCancel(ctx)
	log := o.logger.With().
		Stringer("user_id", caller.UserID).
		Int64("log_id", logID).
		Logger()

	orig, err := o.logs.Get(ctx, logID)
	if errors.Is(err, deliverylog.ErrNotFound) {
		return deliverylog.Entry{}, ErrNotFound
	}
	if err != nil {
		return deliverylog.Entry{}, fmt.Errorf("load delivery log %d: %w", logID, err)
	}
	if orig.UserID != caller.UserID && !caller.Privileged {
		return deliverylog.Entry{}, ErrForbidden
	}

	// an entry that never reached the transport has no rendered content
	if orig.Subject == "" && orig.Body == "" {
		return deliverylog.Entry{}, fmt.Errorf("%w: delivery log %d has no rendered content", ErrMissingContent, logID)
	}

	rcpt, err := o.registry.Recipient(ctx, orig.RecipientID)
	if errors.Is(err, registry.ErrRecipientNotFound) {
		return deliverylog.Entry{}, ErrRecipientNotFound
	}
	if err != nil {
		return deliverylog.Entry{}, fmt.Errorf("load recipient %d: %w", orig.RecipientID, err)
	}
	to, err := address.Validate(rcpt.Email)
	if err != nil {
		return deliverylog.Entry{}, ErrInvalidAddress
	}

	mailer, cred, err := o.resolve(ctx, caller.UserID)
	if err != nil {
		return deliverylog.Entry{}, err
	}
	if err := mailer.Verify(ctx); err != nil {
		o.credentials.Invalidate(caller.UserID)
		return deliverylog.Entry{}, &CredentialError{Err: err}
	}

	atts, err := decodeAttachments(orig.Snapshot)
	if err != nil {
		return deliverylog.Entry{}, fmt.Errorf("decode snapshot of delivery log %d: %w", logID, err)
	}

	out, sendErr := o.send(ctx, mailer, cred, to, orig.Subject, orig.Body, atts)

	retryOf := orig.ID
	in := deliverylog.NewEntry{
		UserID:         caller.UserID,
		RecipientID:    orig.RecipientID,
		RecipientEmail: to,
		Subject:        orig.Subject,
		Body:           orig.Body,
		Attachments:    orig.Snapshot,
		RetryOfID:      &retryOf,
	}
	if sendErr != nil {
		in.Status = deliverylog.StatusFailed
		in.Error = sendErr.Error()
		if transport.IsAuthFailure(sendErr) {
			o.credentials.Invalidate(caller.UserID)
		}
	} else {
		in.Status = deliverylog.StatusSuccess
		if out != nil {
			in.TransportMessageID = out.MessageID
		}
		if err := o.registry.IncrementSentCount(ctx, orig.RecipientID); err != nil {
			log.Error().Err(err).Msg("failed to increment sent count")
		}
	}
	metrics.RetriesTotal.WithLabelValues(string(in.Status)).Inc()

	entry, err := o.logs.Append(ctx, in)
	if err != nil {
		return deliverylog.Entry{}, fmt.Errorf("write retry log entry: %w", err)
	}
	o.events.Publish(entry)

	if sendErr != nil {
		log.Warn().Err(sendErr).Int64("retry_log_id", entry.ID).Msg("retry send failed")
		return entry, &SendError{Entry: entry, Err: sendErr}
	}
	log.Info().Int64("retry_log_id", entry.ID).Msg("retry delivered")
	return entry, nil
}
