// Package metrics exposes the control plane's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveMeetings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "meet",
		Subsystem: "registry",
		Name:      "meetings_active",
		Help:      "Number of meetings currently held in the registry",
	})

	ActiveParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "meet",
		Subsystem: "registry",
		Name:      "participants_active",
		Help:      "Number of participant sessions across all meetings",
	})

	TierChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meet",
		Subsystem: "quality",
		Name:      "tier_changes_total",
		Help:      "Quality tier transitions applied, by resulting tier",
	}, []string{"tier"})

	ReportedLoss = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meet",
		Subsystem: "rtcp",
		Name:      "reported_loss",
		Help:      "Packet loss fraction carried by incoming RTCP reports",
		Buckets:   []float64{0.005, 0.01, 0.02, 0.03, 0.05, 0.08, 0.12, 0.2},
	})

	FingerprintVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meet",
		Subsystem: "verify",
		Name:      "fingerprint_verdicts_total",
		Help:      "Per-receiver frame digest comparison outcomes",
	}, []string{"verdict"})

	ExpiredFingerprints = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meet",
		Subsystem: "verify",
		Name:      "fingerprints_expired_total",
		Help:      "Frame fingerprint records purged by the TTL sweep",
	})

	MessagesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meet",
		Subsystem: "signal",
		Name:      "messages_in_total",
		Help:      "Signaling messages received, by type",
	}, []string{"type"})

	AckSummaries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "meet",
		Subsystem: "ack",
		Name:      "summaries_total",
		Help:      "Per-speaker ACK summaries emitted",
	})
)
