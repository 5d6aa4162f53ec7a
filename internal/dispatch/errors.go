package dispatch

import (
	"errors"
	"fmt"

	"github.com/sungwon/request-mailer/internal/deliverylog"
	"github.com/sungwon/request-mailer/internal/registry"
)

// Batch-level rejections. None of them has side effects.
var (
	ErrNoRecipients      = errors.New("no recipients selected")
	ErrMissingContent    = errors.New("subject and body are required")
	ErrNoCredential      = errors.New("mail transport credential not configured")
	ErrInvalidAttachment = deliverylog.ErrInvalidAttachment
)

// Retry rejections.
var (
	ErrNotFound          = errors.New("delivery log entry not found")
	ErrForbidden         = errors.New("not allowed to retry this delivery")
	ErrRecipientNotFound = registry.ErrRecipientNotFound
	ErrInvalidAddress    = errors.New("recipient address is invalid")
)

// Per-recipient failure reasons recorded on log entries.
const (
	ReasonNotAuthorized    = "not authorized"
	ReasonNotFound         = "recipient not found"
	ReasonInvalidAddress   = "invalid email address"
	ReasonLogWriteFailed   = "delivery log write failed"
	ReasonCredentialFailed = "mail transport rejected the credential"
)

// AttachmentsTooLargeError rejects a batch whose attachments exceed the limit.
type AttachmentsTooLargeError struct {
	Total int64
	Limit int64
}

func (e *AttachmentsTooLargeError) Error() string {
	return fmt.Sprintf("attachments total %s exceeds limit of %s",
		deliverylog.HumanSize(e.Total), deliverylog.HumanSize(e.Limit))
}

// CredentialError is returned when the transport credential fails to verify.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return "mail transport credential verification failed: " + e.Err.Error()
}

func (e *CredentialError) Unwrap() error { return e.Err }

// SendError is returned by Retry when the resend fails. Entry is the failed
// log entry that was written for it.
type SendError struct {
	Entry deliverylog.Entry
	Err   error
}

func (e *SendError) Error() string {
	return "resend failed: " + e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }
