// Package jobs runs the periodic maintenance work of the bot on a gocron scheduler.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	jobHeartbeat = "heartbeat"
	jobSweep     = "sweep_overdue"

	defaultHeartbeatInterval = 10 * time.Minute
	defaultSweepInterval     = 5 * time.Minute
)

// Sweeper expires PENDING permits whose deadline already passed.
type Sweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

// StatusReporter exposes runtime counters for the heartbeat log.
type StatusReporter interface {
	Snapshot() permit.Snapshot
}

// Config sets job intervals. Zero values use the defaults.
type Config struct {
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
}

// Runner owns the scheduler and its jobs.
type Runner struct {
	scheduler gocron.Scheduler
	sweeper   Sweeper
	reporter  StatusReporter
	config    Config
	logger    *zap.Logger
}

// NewRunner builds a scheduler driven by clock.
func NewRunner(clock clockwork.Clock, config Config, sweeper Sweeper, reporter StatusReporter, logger *zap.Logger) (*Runner, error) {
	if sweeper == nil || reporter == nil {
		return nil, errors.New("jobs: sweeper and reporter are required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaultHeartbeatInterval
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaultSweepInterval
	}
	scheduler, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("jobs: scheduler: %w", err)
	}
	return &Runner{scheduler: scheduler, sweeper: sweeper, reporter: reporter, config: config, logger: logger}, nil
}

// Start registers the jobs and starts the scheduler. Jobs use ctx for their work.
func (runner *Runner) Start(ctx context.Context) error {
	if _, err := runner.scheduler.NewJob(
		gocron.DurationJob(runner.config.HeartbeatInterval),
		gocron.NewTask(runner.heartbeat),
		gocron.WithName(jobHeartbeat),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("jobs: register %s: %w", jobHeartbeat, err)
	}
	if _, err := runner.scheduler.NewJob(
		gocron.DurationJob(runner.config.SweepInterval),
		gocron.NewTask(func() { runner.sweep(ctx) }),
		gocron.WithName(jobSweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("jobs: register %s: %w", jobSweep, err)
	}
	runner.scheduler.Start()
	runner.logger.Info("jobs started",
		zap.Duration("heartbeat_interval", runner.config.HeartbeatInterval),
		zap.Duration("sweep_interval", runner.config.SweepInterval),
	)
	return nil
}

// JobNames lists registered jobs.
func (runner *Runner) JobNames() []string {
	jobs := runner.scheduler.Jobs()
	names := make([]string, 0, len(jobs))
	for _, job := range jobs {
		names = append(names, job.Name())
	}
	return names
}

// Stop waits for running jobs and stops the scheduler.
func (runner *Runner) Stop() error {
	return runner.scheduler.Shutdown()
}

func (runner *Runner) heartbeat() {
	snapshot := runner.reporter.Snapshot()
	runner.logger.Info("heartbeat",
		zap.String("next_folio", snapshot.NextFolio.String()),
		zap.Int("active_timers", snapshot.ActiveReservations),
	)
}

func (runner *Runner) sweep(ctx context.Context) {
	expired, err := runner.sweeper.SweepOverdue(ctx)
	if err != nil {
		runner.logger.Warn("sweep overdue permits", zap.Error(err))
		return
	}
	if expired > 0 {
		runner.logger.Info("expired overdue permits", zap.Int("count", expired))
	}
}
