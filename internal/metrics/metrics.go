// Package metrics exposes Prometheus instruments for the monitor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mev_monitor"

// Drop reasons.
const (
	ReasonSaturated    = "saturated"
	ReasonResolve      = "resolve"
	ReasonFees         = "fees"
	ReasonNotMonitored = "not_monitored"
)

type Metrics struct {
	PendingSeen       prometheus.Counter
	Dropped           *prometheus.CounterVec
	Classified        prometheus.Counter
	Alerts            *prometheus.CounterVec
	ClassifyLatency   prometheus.Histogram
	Subscribers       prometheus.Gauge
	SubscriberDrops   prometheus.Counter
	TrackedAddresses  prometheus.Gauge
	TrackedFrontRuns  prometheus.Gauge
	SinkErrors        *prometheus.CounterVec
	FeedReconnections prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		PendingSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_hashes_total",
			Help:      "Pending transaction hashes received from the feed.",
		}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_transactions_total",
			Help:      "Pending transactions skipped without classification.",
		}, []string{"reason"}),
		Classified: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classified_transactions_total",
			Help:      "Transactions to the monitored contract that were scored.",
		}),
		Alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts emitted by pattern and risk level.",
		}, []string{"mev_type", "risk_level"}),
		ClassifyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Time from hash arrival to a classification decision.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Connected alert subscribers.",
		}),
		SubscriberDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_dropped_messages_total",
			Help:      "Messages skipped for subscribers whose send queue was full.",
		}),
		TrackedAddresses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_addresses",
			Help:      "Sender profiles held after the last sweep.",
		}),
		TrackedFrontRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_front_runs",
			Help:      "Unresolved high-risk entries held after the last sweep.",
		}),
		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed alert deliveries per sink.",
		}, []string{"sink"}),
		FeedReconnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_reconnections_total",
			Help:      "Pending transaction subscription re-establishments.",
		}),
		gatherer: reg,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
