package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sungwon/request-mailer/internal/auth"
	"github.com/sungwon/request-mailer/internal/logger"
	"github.com/sungwon/request-mailer/internal/quota"
)

type quotaResponse struct {
	DailyQuota    int    `json:"dailyQuota"`
	UsedToday     int    `json:"usedToday"`
	Remaining     int    `json:"remaining"`
	LastResetDate string `json:"lastResetDate"`
}

func toQuotaResponse(st quota.State) quotaResponse {
	return quotaResponse{
		DailyQuota:    st.DailyQuota,
		UsedToday:     st.UsedToday,
		Remaining:     st.Remaining,
		LastResetDate: st.LastResetDay(),
	}
}

// QuotaStatusHandler handles GET /email/quota.
func QuotaStatusHandler(q QuotaService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserFromContext(r.Context())
		st, err := q.Status(r.Context(), userID)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Stringer("user_id", userID).Msg("quota status")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		respondJSON(w, http.StatusOK, toQuotaResponse(st))
	}
}

type setQuotaRequest struct {
	DailyQuota *int `json:"dailyQuota" validate:"required,gte=0,lte=2147483647"`
}

// SetQuotaHandler handles PUT /admin/quota/{userId}.
func SetQuotaHandler(q QuotaService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserParam(w, r)
		if !ok {
			return
		}
		var req setQuotaRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		st, err := q.SetDailyQuota(r.Context(), userID, *req.DailyQuota)
		if err != nil {
			respondQuotaError(w, r, err)
			return
		}
		log := logger.FromContext(r.Context())
		log.Info().
			Stringer("user_id", userID).
			Stringer("admin_id", auth.UserFromContext(r.Context())).
			Int("daily_quota", st.DailyQuota).
			Msg("daily quota updated")
		respondJSON(w, http.StatusOK, toQuotaResponse(st))
	}
}

type creditQuotaRequest struct {
	Amount int `json:"amount" validate:"required,gt=0,lte=2147483647"`
}

// CreditQuotaHandler handles POST /admin/quota/{userId}/credit.
func CreditQuotaHandler(q QuotaService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserParam(w, r)
		if !ok {
			return
		}
		var req creditQuotaRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		st, err := q.Credit(r.Context(), userID, req.Amount)
		if err != nil {
			respondQuotaError(w, r, err)
			return
		}
		log := logger.FromContext(r.Context())
		log.Info().
			Stringer("user_id", userID).
			Stringer("admin_id", auth.UserFromContext(r.Context())).
			Int("amount", req.Amount).
			Msg("quota credited")
		respondJSON(w, http.StatusOK, toQuotaResponse(st))
	}
}

func parseUserParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid userId")
		return uuid.Nil, false
	}
	return id, true
}

func respondQuotaError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, quota.ErrInvalidAmount) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Msg("quota update failed")
	respondError(w, http.StatusInternalServerError, "internal server error")
}
