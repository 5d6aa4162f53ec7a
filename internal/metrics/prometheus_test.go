package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsRegistered(t *testing.T) {
	tests := []struct {
		name   string
		metric prometheus.Collector
	}{
		{"DispatchBatchesTotal", DispatchBatchesTotal},
		{"DeliveryAttemptsTotal", DeliveryAttemptsTotal},
		{"SendDuration", SendDuration},
		{"RetriesTotal", RetriesTotal},
		{"QuotaRejectionsTotal", QuotaRejectionsTotal},
		{"QuotaCommittedTotal", QuotaCommittedTotal},
		{"StreamSubscribers", StreamSubscribers},
		{"StreamEventsDroppedTotal", StreamEventsDroppedTotal},
		{"StreamEventsSentTotal", StreamEventsSentTotal},
		{"APIRequestsTotal", APIRequestsTotal},
		{"APIRequestDuration", APIRequestDuration},
		{"APIAuthFailuresTotal", APIAuthFailuresTotal},
		{"DBConnectionsActive", DBConnectionsActive},
		{"DBConnectionsIdle", DBConnectionsIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s is nil", tt.name)
			}
		})
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestDeliveryAttemptsCounter(t *testing.T) {
	c := DeliveryAttemptsTotal.WithLabelValues("success", "smtp")
	before := counterValue(t, c)
	c.Inc()
	if got := counterValue(t, c); got != before+1 {
		t.Errorf("counter = %v, want %v", got, before+1)
	}
}

func TestStreamSubscribersGauge(t *testing.T) {
	StreamSubscribers.Set(3)
	StreamSubscribers.Inc()
	StreamSubscribers.Dec()

	var m dto.Metric
	if err := StreamSubscribers.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := m.GetGauge().GetValue(); got != 3 {
		t.Errorf("gauge = %v, want 3", got)
	}
	StreamSubscribers.Set(0)
}

func TestAPIRequestDuration(t *testing.T) {
	APIRequestDuration.WithLabelValues("POST", "/email/send").Observe(0.05)
}
