// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Module provides the metrics handle.
var Module = fx.Provide(New)

type Metrics struct {
	GatewayRequests  *prometheus.CounterVec
	Reconciliations  *prometheus.CounterVec
	WebhookEvents    *prometheus.CounterVec
	RedemptionPhases *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		GatewayRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "goldsip_gateway_requests_total",
			Help: "Outbound payment gateway calls by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		Reconciliations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "goldsip_reconciliations_total",
			Help: "Subscription reconciliations by result (updated, unchanged, debounced, error).",
		}, []string{"result"}),
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "goldsip_webhook_events_total",
			Help: "Inbound gateway webhook events by type and result.",
		}, []string{"type", "result"}),
		RedemptionPhases: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "goldsip_redemption_phases_total",
			Help: "Redemption protocol phases by phase and outcome.",
		}, []string{"phase", "outcome"}),
	}
}

// ObserveGateway records one gateway call outcome.
func (m *Metrics) ObserveGateway(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveReconciliation records one reconciliation result.
func (m *Metrics) ObserveReconciliation(result string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(result).Inc()
}

// ObserveWebhook records one inbound webhook event.
func (m *Metrics) ObserveWebhook(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, result).Inc()
}

// ObserveRedemption records one redemption phase outcome.
func (m *Metrics) ObserveRedemption(phase, outcome string) {
	if m == nil {
		return
	}
	m.RedemptionPhases.WithLabelValues(phase, outcome).Inc()
}
