package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/request-mailer/internal/auth"
	"github.com/sungwon/request-mailer/internal/deliverylog"
	"github.com/sungwon/request-mailer/internal/dispatch"
	"github.com/sungwon/request-mailer/internal/events"
	"github.com/sungwon/request-mailer/internal/quota"
)

// Dispatcher runs sends and retries.
type Dispatcher interface {
	Dispatch(ctx context.Context, sender dispatch.Sender, batch dispatch.Batch) (*dispatch.Result, error)
	Retry(ctx context.Context, caller dispatch.Sender, logID int64) (deliverylog.Entry, error)
}

// LogReader reads the delivery log.
type LogReader interface {
	List(ctx context.Context, f deliverylog.Filter) ([]deliverylog.Entry, error)
	Get(ctx context.Context, id int64) (deliverylog.Entry, error)
}

// QuotaService reads and adjusts the per-user ledger.
type QuotaService interface {
	Status(ctx context.Context, userID uuid.UUID) (quota.State, error)
	SetDailyQuota(ctx context.Context, userID uuid.UUID, dailyQuota int) (quota.State, error)
	Credit(ctx context.Context, userID uuid.UUID, n int) (quota.State, error)
}

// Streamer hands out live delivery event subscriptions.
type Streamer interface {
	Subscribe(pred events.Predicate) *events.Subscription
}

// Deps are the collaborators NewRouter wires into handlers.
type Deps struct {
	Dispatcher Dispatcher
	Logs       LogReader
	Quota      QuotaService
	Stream     Streamer
	JWT        *auth.JWTService
	// Readiness is checked by /readyz, keyed by dependency name.
	Readiness map[string]Pinger
	Heartbeat time.Duration
	Logger    zerolog.Logger
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(d.Logger))
	r.Use(RecoverMiddleware(d.Logger))
	r.Use(MetricsMiddleware)

	// Health endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(d.Readiness))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.JWTAuth(d.JWT))

		r.Route("/email", func(r chi.Router) {
			r.Post("/send", SendHandler(d.Dispatcher))
			r.Post("/retry/{id}", RetryHandler(d.Dispatcher))
			r.Get("/logs", ListLogsHandler(d.Logs))
			r.Get("/logs/{id}", GetLogHandler(d.Logs))
			r.Get("/stream", StreamHandler(d.Stream, d.Heartbeat))
			r.Get("/quota", QuotaStatusHandler(d.Quota))
			r.Post("/placeholders", PlaceholdersHandler())
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin())
			r.Put("/quota/{userId}", SetQuotaHandler(d.Quota))
			r.Post("/quota/{userId}/credit", CreditQuotaHandler(d.Quota))
		})
	})

	return r
}
