// Package retention runs the trash purge on a fixed interval.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Purger permanently removes trash entries past retention.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Scheduler calls a Purger once at Start and then every interval.
type Scheduler struct {
	purger   Purger
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewScheduler returns a stopped scheduler.
func NewScheduler(purger Purger, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{purger: purger, interval: interval, log: log}
}

// Start begins purging in the background. Calling Start on a running
// scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx, s.done)
	s.log.Info().Dur("interval", s.interval).Msg("retention scheduler started")
}

// Stop cancels the loop and waits for an in-flight purge to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	s.log.Info().Msg("retention scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.purge(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge(ctx)
		}
	}
}

func (s *Scheduler) purge(ctx context.Context) {
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Int("purged", n).Msg("trash purge failed")
		return
	}
	if n > 0 {
		s.log.Info().Int("purged", n).Msg("trash purged")
	}
}
