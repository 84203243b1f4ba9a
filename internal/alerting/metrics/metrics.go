// Package metrics registers the Prometheus instruments for the alerting
// pipeline. Dispatch is fire-and-forget, so these counters are the only
// place provider failures remain visible.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vikingscada",
		Subsystem: "alerting",
		Name:      "alerts_emitted_total",
		Help:      "Alert events produced by the evaluator, by type.",
	}, []string{"type"})

	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vikingscada",
		Subsystem: "alerting",
		Name:      "dispatch_failures_total",
		Help:      "Provider dispatch failures swallowed by best-effort delivery, by channel.",
	}, []string{"channel"})

	CampaignSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vikingscada",
		Subsystem: "alerting",
		Name:      "campaign_steps_total",
		Help:      "Voice escalation steps processed, by outcome.",
	}, []string{"outcome"})

	TrafficDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vikingscada",
		Subsystem: "traffic",
		Name:      "decisions_total",
		Help:      "Telemetry quota gate decisions, by outcome.",
	}, []string{"outcome"})

	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vikingscada",
		Subsystem: "ingress",
		Name:      "messages_total",
		Help:      "Device transport messages handled, by kind.",
	}, []string{"kind"})
)
