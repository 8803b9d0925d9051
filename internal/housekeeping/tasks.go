package housekeeping

import (
	"time"

	"github.com/avalkov/mev-monitor/internal/metrics"
	"github.com/avalkov/mev-monitor/internal/model"
	"github.com/rs/zerolog"
)

// Sweep evicts expired front-run entries and idle sender profiles.
func Sweep(profiles sweeper, tracker sweeper, m *metrics.Metrics, log zerolog.Logger) Task {
	return func(now time.Time) {
		evictedEntries := tracker.Sweep(now)
		evictedProfiles := profiles.Sweep(now)

		if m != nil {
			m.TrackedFrontRuns.Set(float64(tracker.Len()))
			m.TrackedAddresses.Set(float64(profiles.Len()))
		}

		if evictedEntries > 0 || evictedProfiles > 0 {
			log.Debug().
				Int("entries", evictedEntries).
				Int("profiles", evictedProfiles).
				Msg("swept stale state")
		}
	}
}

// Status publishes the engine's status summary.
func Status(source statusSource, sink publisher, log zerolog.Logger) Task {
	return func(time.Time) {
		if err := sink.Broadcast(source.Status()); err != nil {
			log.Warn().Err(err).Msg("broadcast status")
		}
	}
}

type sweeper interface {
	Sweep(now time.Time) int
	Len() int
}

type statusSource interface {
	Status() model.SystemStatus
}

type publisher interface {
	Broadcast(v interface{}) error
}
