package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/sungwon/request-mailer/internal/auth"
	"github.com/sungwon/request-mailer/internal/deliverylog"
	"github.com/sungwon/request-mailer/internal/logger"
)

// ListLogsHandler handles GET /email/logs. Non-admin callers only see their
// own entries. Attachment snapshots are never included.
func ListLogsHandler(logs LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := deliverylog.Filter{
			Viewer:     auth.UserFromContext(r.Context()),
			Privileged: auth.IsPrivileged(r.Context()),
		}

		q := r.URL.Query()
		if s := q.Get("status"); s != "" {
			f.Status = deliverylog.Status(s)
			if !f.Status.Valid() {
				respondError(w, http.StatusBadRequest, "invalid status")
				return
			}
		}
		var ok bool
		if f.RecipientID, ok = queryInt64(w, q.Get("recipientId"), "recipientId"); !ok {
			return
		}
		limit, ok := queryInt64(w, q.Get("limit"), "limit")
		if !ok {
			return
		}
		offset, ok := queryInt64(w, q.Get("offset"), "offset")
		if !ok {
			return
		}
		f.Limit, f.Offset = int(limit), int(offset)

		entries, err := logs.List(r.Context(), f)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("list delivery logs")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		respondJSON(w, http.StatusOK, entries)
	}
}

type logDetailResponse struct {
	deliverylog.Entry
	HasSnapshot bool `json:"hasSnapshot"`
}

// GetLogHandler handles GET /email/logs/{id}.
func GetLogHandler(logs LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		entry, err := logs.Get(r.Context(), id)
		if errors.Is(err, deliverylog.ErrNotFound) {
			respondError(w, http.StatusNotFound, "delivery log entry not found")
			return
		}
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Int64("log_id", id).Msg("get delivery log")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if !auth.IsPrivileged(r.Context()) && entry.UserID != auth.UserFromContext(r.Context()) {
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}

		respondJSON(w, http.StatusOK, logDetailResponse{Entry: entry, HasSnapshot: entry.HasSnapshot()})
	}
}

// queryInt64 parses an optional non-negative integer query parameter.
func queryInt64(w http.ResponseWriter, raw, name string) (int64, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}
