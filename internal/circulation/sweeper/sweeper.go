// Package sweeper drives the time-based circulation transitions: overdue
// flagging and fine accrual, pickup code expiry and hold expiry. Each record
// is handled in its own transaction on a worker pool, and a failing record
// is logged and left for the next pass.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/library-circulation/internal/circulation/service"
	"github.com/panjf2000/ants/v2"
)

// Step names one kind of time-driven transition
type Step string

const (
	StepOverdue Step = "overdue"
	StepPickups Step = "pickups"
	StepHolds   Step = "holds"
)

// AllSteps is the order a full pass runs in
var AllSteps = []Step{StepOverdue, StepPickups, StepHolds}

// ParseSteps turns a comma separated list into steps; empty means all
func ParseSteps(s string) ([]Step, error) {
	if strings.TrimSpace(s) == "" {
		return AllSteps, nil
	}
	var steps []Step
	for _, part := range strings.Split(s, ",") {
		switch step := Step(strings.TrimSpace(part)); step {
		case StepOverdue, StepPickups, StepHolds:
			steps = append(steps, step)
		default:
			return nil, fmt.Errorf("unknown sweep step %q (want overdue, pickups or holds)", part)
		}
	}
	return steps, nil
}

type Config struct {
	Interval  time.Duration
	BatchSize int
	PoolSize  int
}

// Report counts what one pass changed
type Report struct {
	LoansFlaggedOverdue int64
	FinesRefreshed      int64
	PickupsExpired      int64
	HoldsExpired        int64
	Failed              int64
}

// Preview lists the records a pass would look at, without changing them
type Preview struct {
	OverdueCandidates []uuid.UUID
	OverdueLoans      []uuid.UUID
	ExpiredPickups    []uuid.UUID
	LapsedHolds       []uuid.UUID
}

type Sweeper struct {
	lifecycle service.LifecycleService
	pool      *ants.Pool
	cfg       Config
	logger    *slog.Logger
}

func NewSweeper(lifecycle service.LifecycleService, cfg Config, logger *slog.Logger) (*Sweeper, error) {
	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweeper worker pool: %w", err)
	}
	return &Sweeper{
		lifecycle: lifecycle,
		pool:      pool,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Run sweeps every Interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Starting lifecycle sweeper", "interval", s.cfg.Interval.String(), "batch_size", s.cfg.BatchSize)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Lifecycle sweeper stopped")
			return
		case <-ticker.C:
			report := s.SweepOnce(ctx, AllSteps...)
			if report.changed() || report.Failed > 0 {
				s.logger.Info("Sweep pass finished",
					"loans_flagged_overdue", report.LoansFlaggedOverdue,
					"fines_refreshed", report.FinesRefreshed,
					"pickups_expired", report.PickupsExpired,
					"holds_expired", report.HoldsExpired,
					"failed", report.Failed,
				)
			}
		}
	}
}

func (r *Report) changed() bool {
	return r.LoansFlaggedOverdue+r.FinesRefreshed+r.PickupsExpired+r.HoldsExpired > 0
}

// SweepOnce runs one batch of every requested step and waits for it
func (s *Sweeper) SweepOnce(ctx context.Context, steps ...Step) *Report {
	report := &Report{}
	for _, step := range steps {
		switch step {
		case StepOverdue:
			s.runStep(ctx, "flag_overdue", s.lifecycle.ListOverdueCandidates, s.lifecycle.FlagOverdue, &report.LoansFlaggedOverdue, &report.Failed)
			s.runStep(ctx, "refresh_fine", s.lifecycle.ListOverdueLoans, s.lifecycle.RefreshOverdueFine, &report.FinesRefreshed, &report.Failed)
		case StepPickups:
			s.runStep(ctx, "expire_pickup", s.lifecycle.ListExpiredPickups, s.lifecycle.ExpirePickup, &report.PickupsExpired, &report.Failed)
		case StepHolds:
			s.runStep(ctx, "expire_hold", s.lifecycle.ListLapsedHolds, s.lifecycle.ExpireHold, &report.HoldsExpired, &report.Failed)
		}
	}
	return report
}

func (s *Sweeper) runStep(
	ctx context.Context,
	name string,
	list func(ctx context.Context, limit int) ([]uuid.UUID, error),
	apply func(ctx context.Context, id uuid.UUID) (bool, error),
	changed, failed *int64,
) {
	logger := s.logger.With("step", name)

	ids, err := list(ctx, s.cfg.BatchSize)
	if err != nil {
		logger.Error("Failed to list records for sweep", "error", err)
		atomic.AddInt64(failed, 1)
		return
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			ok, err := apply(ctx, id)
			if err != nil {
				logger.Warn("Sweep of record failed, will retry next pass", "id", id.String(), "error", err)
				atomic.AddInt64(failed, 1)
				return
			}
			if ok {
				atomic.AddInt64(changed, 1)
			}
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit sweep task to worker pool", "id", id.String(), "error", err)
			atomic.AddInt64(failed, 1)
		}
	}
	wg.Wait()
}

// Preview lists the records the requested steps would visit
func (s *Sweeper) Preview(ctx context.Context, steps ...Step) (*Preview, error) {
	p := &Preview{}
	var err error
	for _, step := range steps {
		switch step {
		case StepOverdue:
			if p.OverdueCandidates, err = s.lifecycle.ListOverdueCandidates(ctx, s.cfg.BatchSize); err != nil {
				return nil, err
			}
			if p.OverdueLoans, err = s.lifecycle.ListOverdueLoans(ctx, s.cfg.BatchSize); err != nil {
				return nil, err
			}
		case StepPickups:
			if p.ExpiredPickups, err = s.lifecycle.ListExpiredPickups(ctx, s.cfg.BatchSize); err != nil {
				return nil, err
			}
		case StepHolds:
			if p.LapsedHolds, err = s.lifecycle.ListLapsedHolds(ctx, s.cfg.BatchSize); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// Shutdown releases the worker pool
func (s *Sweeper) Shutdown() {
	s.logger.Info("Shutting down sweeper worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}
