/*
scheduler.go - Periodic overdue-invoice sweep

PURPOSE:
  Runs the overdue sweep on an interval: every project's pending invoices
  past their due date flip to overdue. The sweep is observational and
  idempotent, so the interval is a freshness knob, not a correctness one -
  a missed tick just delays the flip.

DESIGN:
  - Background goroutine with a configurable check interval
  - One run sweeps every project the ledger knows about
  - A failure in one project logs and moves on to the next
  - RunNow allows an immediate sweep (admin endpoint, tests)

USAGE:
  scheduler := NewSweepScheduler(ledgerStore, invoiceEngine, log)
  scheduler.Start()
  defer scheduler.Stop()

SEE ALSO:
  - invoice/engine.go: SweepOverdue, the idempotent per-project sweep
  - handlers.go: the manual sweep-overdue endpoint
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/budget-engine/invoice"
	"github.com/warp/budget-engine/ledger"
)

// SweepScheduler flips overdue invoices on a fixed interval.
type SweepScheduler struct {
	Ledger        ledger.Store
	Invoices      *invoice.Engine
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a scheduler with a one-hour interval.
func NewSweepScheduler(ledgerStore ledger.Store, invoices *invoice.Engine, log zerolog.Logger) *SweepScheduler {
	return &SweepScheduler{
		Ledger:        ledgerStore,
		Invoices:      invoices,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info().Msg("sweep scheduler disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.log.Info().Dur("interval", s.CheckInterval).Msg("sweep scheduler started")
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.log.Info().Msg("sweep scheduler stopped")
	}
}

func (s *SweepScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.sweepAll()

	for {
		select {
		case <-s.ticker.C:
			s.sweepAll()
		case <-s.stop:
			return
		}
	}
}

// RunNow triggers an immediate sweep across all projects.
func (s *SweepScheduler) RunNow() {
	s.sweepAll()
}

func (s *SweepScheduler) sweepAll() {
	ctx := context.Background()
	asOf := time.Now().UTC()

	projects, err := s.Ledger.ListProjects(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep: failed to list projects")
		return
	}

	flipped := 0
	for _, pid := range projects {
		res, err := s.Invoices.SweepOverdue(ctx, pid, asOf)
		if err != nil {
			s.log.Error().Err(err).Str("project", string(pid)).Msg("sweep failed for project")
			continue
		}
		for _, f := range res.Failures {
			s.log.Error().Err(f.Err).Str("project", string(pid)).Str("invoice", string(f.ID)).Msg("sweep: could not flip invoice")
		}
		flipped += res.Flipped
	}

	if flipped > 0 {
		s.log.Info().Int("flipped", flipped).Int("projects", len(projects)).Msg("overdue sweep completed")
	}
}
