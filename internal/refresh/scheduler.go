package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Scheduler triggers periodic refresh runs over the configured default year
// range. With a zero interval it does nothing and triggering is left to the
// HTTP endpoint.
type Scheduler struct {
	runner    *Runner
	interval  time.Duration
	startYear int
	endYear   int
	wg        sync.WaitGroup
}

func NewScheduler(runner *Runner, interval time.Duration, startYear, endYear int) *Scheduler {
	return &Scheduler{
		runner:    runner,
		interval:  interval,
		startYear: startYear,
		endYear:   endYear,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	slog.Info("starting refresh scheduler", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial refresh on startup
	s.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh scheduler shutting down")
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context) {
	summary, err := s.runner.Run(ctx, s.startYear, s.endYear)
	switch {
	case errors.Is(err, ErrBusy):
		slog.Warn("scheduled refresh skipped, run already in progress")
	case err != nil:
		slog.Error("scheduled refresh failed", "error", err)
	default:
		slog.Info("scheduled refresh complete", "total_inserted", summary.TotalInserted)
	}
}

func (s *Scheduler) Stop() {
	s.wg.Wait()
	slog.Info("refresh scheduler stopped")
}
