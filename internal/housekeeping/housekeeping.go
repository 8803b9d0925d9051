// Package housekeeping runs periodic maintenance against the detector's
// shared state: eviction sweeps and status summaries.
package housekeeping

import (
	"context"
	"sync"
	"time"

	"github.com/avalkov/mev-monitor/internal/clock"
	"github.com/rs/zerolog"
)

// Task is one maintenance pass. It must not block on network calls while
// holding store locks.
type Task func(now time.Time)

func NewScheduler(name string, interval time.Duration, task Task, clk clock.Clock, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		task:     task,
		clock:    clk,
		log:      log.With().Str("component", "housekeeping").Str("task", name).Logger(),
	}
}

// Start runs the task every interval until ctx is done or Stop is called.
// Calling Start on a running scheduler has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce()
			}
		}
	}(s.done)

	s.log.Debug().Dur("interval", s.interval).Msg("scheduler started")
}

// Stop halts the timer and waits for a pass in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) RunOnce() {
	s.task(s.clock.Now())
}

type Scheduler struct {
	interval time.Duration
	task     Task
	clock    clock.Clock
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}
