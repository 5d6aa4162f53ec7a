package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/request-mailer/internal/auth"
	"github.com/sungwon/request-mailer/internal/deliverylog"
	"github.com/sungwon/request-mailer/internal/dispatch"
	"github.com/sungwon/request-mailer/internal/logger"
	"github.com/sungwon/request-mailer/internal/quota"
	"github.com/sungwon/request-mailer/internal/render"
)

type attachmentRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	Content     string `json:"content" validate:"required"`
	Encoding    string `json:"encoding" validate:"omitempty,oneof=base64 text utf8 utf-8"`
	ContentType string `json:"contentType" validate:"max=255"`
}

// sendRequest is the JSON body of POST /email/send. The *Template fields are
// accepted as aliases of subject and body.
type sendRequest struct {
	RecipientIDs    []int64             `json:"recipientIds" validate:"dive,gt=0"`
	Subject         string              `json:"subject"`
	Body            string              `json:"body"`
	SubjectTemplate string              `json:"subjectTemplate"`
	BodyTemplate    string              `json:"bodyTemplate"`
	Meta            map[string]string   `json:"meta"`
	CustomFields    map[string]string   `json:"customFields"`
	Attachments     []attachmentRequest `json:"attachments" validate:"dive"`
}

func (req sendRequest) subject() string {
	if req.SubjectTemplate != "" {
		return req.SubjectTemplate
	}
	return req.Subject
}

func (req sendRequest) body() string {
	if req.BodyTemplate != "" {
		return req.BodyTemplate
	}
	return req.Body
}

func (req sendRequest) batch() dispatch.Batch {
	atts := make([]deliverylog.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		atts = append(atts, deliverylog.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			Encoding:    a.Encoding,
			ContentType: a.ContentType,
		})
	}
	return dispatch.Batch{
		RecipientIDs: req.RecipientIDs,
		Subject:      req.subject(),
		Body:         req.body(),
		Meta:         render.Meta(req.Meta),
		CustomFields: req.CustomFields,
		Attachments:  atts,
	}
}

type sendResponse struct {
	Message string `json:"message"`
	*dispatch.Result
}

// SendHandler handles POST /email/send.
func SendHandler(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		if len(req.RecipientIDs) > 0 && req.subject() != "" && req.body() != "" {
			missing := render.MissingCustomFields(req.subject(), req.body(), render.Meta(req.Meta), req.CustomFields)
			if len(missing) > 0 {
				respondJSON(w, http.StatusBadRequest, map[string]interface{}{
					"error":   "missing custom fields",
					"missing": missing,
				})
				return
			}
		}

		result, err := d.Dispatch(r.Context(), senderFrom(r), req.batch())
		if err != nil {
			respondDispatchError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, sendResponse{Message: summarize(result), Result: result})
	}
}

func summarize(res *dispatch.Result) string {
	if res.Aborted {
		return fmt.Sprintf("dispatch aborted after %d sent, %d failed: %s", res.Sent, res.Failed, res.AbortReason)
	}
	return fmt.Sprintf("dispatch finished: %d sent, %d failed", res.Sent, res.Failed)
}

// RetryHandler handles POST /email/retry/{id}.
func RetryHandler(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		entry, err := d.Retry(r.Context(), senderFrom(r), id)
		if err != nil {
			respondDispatchError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"message": "email resent",
			"log":     entry,
		})
	}
}

type placeholdersRequest struct {
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Meta    map[string]string `json:"meta"`
}

// PlaceholdersHandler handles POST /email/placeholders. It reports every
// placeholder in the templates and the ones a send must supply as custom
// fields.
func PlaceholdersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req placeholdersRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		respondJSON(w, http.StatusOK, map[string][]string{
			"placeholders": render.Placeholders(req.Subject, req.Body),
			"required":     render.RequiredCustomFields(req.Subject, req.Body, render.Meta(req.Meta)),
		})
	}
}

func senderFrom(r *http.Request) dispatch.Sender {
	return dispatch.Sender{
		UserID:     auth.UserFromContext(r.Context()),
		Privileged: auth.IsPrivileged(r.Context()),
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// respondDispatchError maps orchestrator errors to HTTP responses.
func respondDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		exceeded *quota.ExceededError
		tooLarge *dispatch.AttachmentsTooLargeError
		credErr  *dispatch.CredentialError
		sendErr  *dispatch.SendError
	)
	switch {
	case errors.As(err, &exceeded):
		respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":     err.Error(),
			"remaining": exceeded.Remaining,
		})
	case errors.As(err, &sendErr):
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": err.Error(),
			"log":   sendErr.Entry,
		})
	case errors.As(err, &tooLarge):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &credErr):
		respondError(w, http.StatusUnauthorized, err.Error())
	default:
		status := dispatchErrorStatus(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("dispatch request failed")
			msg = "internal server error"
		}
		respondError(w, status, msg)
	}
}

// dispatchErrorStatus maps the orchestrator's sentinel errors to a status code.
func dispatchErrorStatus(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrNoRecipients),
		errors.Is(err, dispatch.ErrMissingContent),
		errors.Is(err, dispatch.ErrInvalidAttachment),
		errors.Is(err, dispatch.ErrNoCredential),
		errors.Is(err, dispatch.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrNotFound),
		errors.Is(err, dispatch.ErrRecipientNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, quota.ErrExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
