// Package monitor drives the pipeline: pending hashes from the feed are
// resolved, classified and the resulting alerts handed to every sink.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/avalkov/mev-monitor/internal/detector"
	"github.com/avalkov/mev-monitor/internal/metrics"
	"github.com/avalkov/mev-monitor/internal/model"
	"github.com/avalkov/mev-monitor/internal/node"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const unitTimeout = 15 * time.Second

func NewMonitor(feed feed, resolver resolver, classifier classifier, sinks []Sink, maxInFlight int64, m *metrics.Metrics, log zerolog.Logger) *Monitor {
	return &Monitor{
		feed:       feed,
		resolver:   resolver,
		classifier: classifier,
		sinks:      sinks,
		inFlight:   semaphore.NewWeighted(maxInFlight),
		metrics:    m,
		log:        log.With().Str("component", "monitor").Logger(),
	}
}

// Run consumes the pending feed until ctx is done. Every hash is handled on
// its own goroutine; when maxInFlight units are already running the hash is
// dropped. Units still running at shutdown are abandoned.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info().Msg("monitoring pending transactions")

	for hash := range m.feed.SubscribePending(ctx) {
		m.metrics.PendingSeen.Inc()

		if !m.inFlight.TryAcquire(1) {
			m.drop(hash, metrics.ReasonSaturated, nil)
			continue
		}

		go func(hash common.Hash, arrived time.Time) {
			defer m.inFlight.Release(1)
			m.handle(ctx, hash, arrived)
		}(hash, time.Now())
	}

	return ctx.Err()
}

func (m *Monitor) handle(ctx context.Context, hash common.Hash, arrived time.Time) {
	ctx, cancel := context.WithTimeout(ctx, unitTimeout)
	defer cancel()

	tx, err := m.resolver.Resolve(ctx, hash)
	if err != nil {
		m.drop(hash, metrics.ReasonResolve, err)
		return
	}

	alert, err := m.classifier.Process(ctx, tx)
	switch {
	case errors.Is(err, detector.ErrNotMonitored):
		m.metrics.Dropped.WithLabelValues(metrics.ReasonNotMonitored).Inc()
		return
	case errors.Is(err, detector.ErrNoFees):
		m.drop(hash, metrics.ReasonFees, err)
		return
	case err != nil:
		m.drop(hash, metrics.ReasonResolve, err)
		return
	}

	m.metrics.Classified.Inc()
	m.metrics.ClassifyLatency.Observe(time.Since(arrived).Seconds())

	if alert == nil {
		return
	}
	m.metrics.Alerts.WithLabelValues(string(alert.MevType), string(alert.RiskLevel)).Inc()
	m.deliver(ctx, *alert)
}

// deliver hands the alert to every sink. A failing sink never stops the
// others.
func (m *Monitor) deliver(ctx context.Context, alert model.Alert) {
	for _, sink := range m.sinks {
		if err := sink.Deliver(ctx, alert); err != nil {
			m.metrics.SinkErrors.WithLabelValues(sink.Name).Inc()
			m.log.Warn().Err(err).Str("sink", sink.Name).Str("hash", alert.Hash).Msg("deliver alert")
		}
	}
}

func (m *Monitor) drop(hash common.Hash, reason string, err error) {
	m.metrics.Dropped.WithLabelValues(reason).Inc()

	event := m.log.Debug().Str("hash", hash.Hex()).Str("reason", reason)
	if errors.Is(err, node.ErrNotFound) {
		event.Msg("transaction left the pool before it was resolved")
		return
	}
	event.Err(err).Msg("transaction dropped")
}

type feed interface {
	SubscribePending(ctx context.Context) <-chan common.Hash
}

type resolver interface {
	Resolve(ctx context.Context, hash common.Hash) (model.Transaction, error)
}

type classifier interface {
	Process(ctx context.Context, tx model.Transaction) (*model.Alert, error)
}

type Monitor struct {
	feed       feed
	resolver   resolver
	classifier classifier
	sinks      []Sink
	inFlight   *semaphore.Weighted
	metrics    *metrics.Metrics
	log        zerolog.Logger
}
