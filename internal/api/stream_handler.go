package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sungwon/request-mailer/internal/auth"
	"github.com/sungwon/request-mailer/internal/events"
	"github.com/sungwon/request-mailer/internal/logger"
	"github.com/sungwon/request-mailer/internal/metrics"
)

// DefaultHeartbeat keeps idle streams open through proxies.
const DefaultHeartbeat = 25 * time.Second

// StreamHandler handles GET /email/stream. Each delivery log entry the caller
// may see is written as one "data: <json>" event; a keep-alive comment is
// written every heartbeat. The subscription ends when the client goes away,
// a write fails, or the broker drops a subscriber that fell behind.
func StreamHandler(s Streamer, heartbeat time.Duration) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.FromContext(ctx)
		rc := http.NewResponseController(w)

		sub := s.Subscribe(events.ForViewer(auth.UserFromContext(ctx), auth.IsPrivileged(ctx)))
		defer sub.Close()

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			log.Warn().Err(err).Msg("stream flush unsupported")
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub.C():
				if !ok {
					log.Debug().Msg("stream subscriber dropped")
					return
				}
				data, err := json.Marshal(e)
				if err != nil {
					log.Error().Err(err).Int64("log_id", e.ID).Msg("encode stream event")
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}
				metrics.StreamEventsSentTotal.Inc()
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}
			}
		}
	}
}
