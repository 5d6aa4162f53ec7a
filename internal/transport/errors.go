package transport

import (
	"errors"
	"fmt"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
)

// Error wraps a transport failure with classification metadata.
type Error struct {
	// Transport is the kind that returned the error.
	Transport string
	// Code is the SMTP reply code or HTTP status, 0 for network errors.
	Code    int
	Message string
	// Auth marks a rejected credential. Dispatch aborts the batch on it
	// because every remaining send would fail the same way.
	Auth bool
	// Permanent indicates the error will not succeed on retry.
	Permanent bool
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %d %s", e.Transport, e.Code, e.Message)
	}
	return e.Transport + ": " + e.Message
}

// IsAuthFailure reports whether err is a credential rejection.
func IsAuthFailure(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Auth
	}
	return false
}

// IsPermanent reports whether err will not succeed on retry.
func IsPermanent(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Permanent
	}
	return false
}

// ErrAuthUnsupported is reported when a server does not offer AUTH but a
// credential is configured.
var ErrAuthUnsupported = errors.New("server does not support AUTH")

// ClassifySMTPError converts an error returned by the SMTP client into an
// *Error. Reply codes 530, 534, 535 and 538 and a 454 mentioning
// authentication are credential failures.
func ClassifySMTPError(transportName string, err error) *Error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return te
	}

	if errors.Is(err, ErrAuthUnsupported) {
		return &Error{Transport: transportName, Message: err.Error(), Auth: true, Permanent: true}
	}

	var se *gosmtp.SMTPError
	if !errors.As(err, &se) {
		return &Error{Transport: transportName, Message: err.Error()}
	}

	e := &Error{
		Transport: transportName,
		Code:      se.Code,
		Message:   se.Message,
		Permanent: se.Code >= 500,
	}
	switch se.Code {
	case 530, 534, 535, 538:
		e.Auth = true
		e.Permanent = true
	case 454:
		e.Auth = strings.Contains(strings.ToLower(se.Message), "auth")
	}
	return e
}

// ClassifyHTTPError creates an *Error from an HTTP status code and response
// body. 401 and 403 are credential failures. Success codes return nil.
func ClassifyHTTPError(transportName string, statusCode int, body string) *Error {
	e := &Error{
		Transport: transportName,
		Code:      statusCode,
		Message:   body,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil

	case statusCode == 400:
		e.Permanent = containsPermanentIndicator(body)

	case statusCode == 401, statusCode == 403:
		e.Auth = true
		e.Permanent = true

	case statusCode == 429:
		e.Permanent = false

	case statusCode >= 500:
		e.Permanent = containsPermanentServerIndicator(body)
		e.Auth = e.Permanent

	default:
		e.Permanent = statusCode >= 400 && statusCode < 500
	}

	return e
}

func containsPermanentIndicator(body string) bool {
	return containsAny(body,
		"invalid recipient",
		"invalid email",
		"does not exist",
		"mailbox not found",
		"recipient rejected",
		"bad request",
		"validation error",
		"invalid address",
	)
}

// containsPermanentServerIndicator matches 5xx bodies that really describe
// a broken credential.
func containsPermanentServerIndicator(body string) bool {
	return containsAny(body,
		"invalid api key",
		"authentication failed",
		"account suspended",
		"account disabled",
		"unauthorized",
	)
}

func containsAny(body string, patterns ...string) bool {
	lower := strings.ToLower(body)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
