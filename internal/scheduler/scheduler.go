package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Trigger names fired by the scheduler.
const (
	TriggerMidnightRollover = "midnight_rollover"
	TriggerWidgetTick       = "widget_tick"
)

// FireFunc handles one scheduled trigger.
type FireFunc func(ctx context.Context, trigger string) error

// Jobs describes the background schedule.
type Jobs struct {
	// RolloverCron is a five-field cron expression evaluated in the scheduler location.
	RolloverCron string
	// RefreshInterval is the widget refresh cadence. Zero disables it.
	RefreshInterval time.Duration
}

// Scheduler owns the gocron scheduler driving time-based recomputes.
type Scheduler struct {
	inner    gocron.Scheduler
	logger   *slog.Logger
	fire     FireFunc
	rollover gocron.Job
	refresh  gocron.Job

	ctx    context.Context
	cancel context.CancelFunc
}

// New registers the jobs but does not start them. loc must be loadable by name
// (time.LoadLocation); fixed-offset zones are rejected.
func New(logger *slog.Logger, loc *time.Location, jobs Jobs, fire FireFunc) (*Scheduler, error) {
	if fire == nil {
		return nil, errors.New("scheduler requires a fire func")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	// gocron hands the zone to its cron parser by name, so only loadable zones work.
	if _, err := time.LoadLocation(loc.String()); err != nil {
		return nil, fmt.Errorf("scheduler location %q is not a loadable IANA zone: %w", loc.String(), err)
	}

	inner, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{inner: inner, logger: logger, fire: fire, ctx: ctx, cancel: cancel}

	if jobs.RolloverCron != "" {
		s.rollover, err = inner.NewJob(
			gocron.CronJob(jobs.RolloverCron, false),
			gocron.NewTask(s.run, TriggerMidnightRollover),
			gocron.WithName(TriggerMidnightRollover),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			cancel()
			_ = inner.Shutdown()
			return nil, fmt.Errorf("register rollover job: %w", err)
		}
	}

	if jobs.RefreshInterval > 0 {
		s.refresh, err = inner.NewJob(
			gocron.DurationJob(jobs.RefreshInterval),
			gocron.NewTask(s.run, TriggerWidgetTick),
			gocron.WithName(TriggerWidgetTick),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			cancel()
			_ = inner.Shutdown()
			return nil, fmt.Errorf("register refresh job: %w", err)
		}
	}

	return s, nil
}

func (s *Scheduler) run(trigger string) {
	if err := s.fire(s.ctx, trigger); err != nil {
		s.logger.Warn("scheduled trigger failed", slog.String("trigger", trigger), slog.Any("error", err))
		return
	}
	s.logger.Debug("scheduled trigger handled", slog.String("trigger", trigger))
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.inner.Start()
	s.logger.Info("scheduler started", slog.Bool("rollover", s.rollover != nil), slog.Bool("refresh", s.refresh != nil))
}

// NextRollover reports when the midnight job fires next.
func (s *Scheduler) NextRollover() (time.Time, error) {
	if s.rollover == nil {
		return time.Time{}, errors.New("rollover job not configured")
	}
	return s.rollover.NextRun()
}

// Shutdown stops the jobs and cancels any in-flight trigger.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.inner.Shutdown()
}
