// Package scheduler drives the periodic background work: the
// expired-window sweep and the plateau cycle. Both underlying operations
// are idempotent, so overlapping or over-frequent ticks are harmless.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/promptbandit/promptbandit/internal/observer"
	"github.com/promptbandit/promptbandit/internal/plateau"
)

type Scheduler struct {
	observer *observer.Observer
	detector *plateau.Detector
	logger   *slog.Logger

	sweepInterval   time.Duration
	sweepBatchSize  int
	plateauInterval time.Duration
}

func New(obs *observer.Observer, det *plateau.Detector, logger *slog.Logger,
	sweepInterval time.Duration, sweepBatchSize int, plateauInterval time.Duration) *Scheduler {
	return &Scheduler{
		observer:        obs,
		detector:        det,
		logger:          logger,
		sweepInterval:   sweepInterval,
		sweepBatchSize:  sweepBatchSize,
		plateauInterval: plateauInterval,
	}
}

// Run blocks driving both loops until ctx is canceled, then returns
// ctx's error. Tick failures are logged and the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.loop(ctx, s.sweepInterval, s.runSweep) })
	g.Go(func() error { return s.loop(ctx, s.plateauInterval, s.runPlateauCycle) })

	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	processed, err := s.observer.ProcessExpiredWindows(ctx, s.sweepBatchSize)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return
	}
	if processed > 0 {
		s.logger.Info("expiry sweep closed windows", "count", processed)
	}
}

func (s *Scheduler) runPlateauCycle(ctx context.Context) {
	result, err := s.detector.RunCycle(ctx)
	if err != nil {
		s.logger.Error("plateau cycle failed", "error", err)
		return
	}
	s.logger.Debug("plateau cycle finished",
		"plateau", result.Plateau,
		"new_variants", result.NewVariants,
		"reason", result.Reason,
	)
}
