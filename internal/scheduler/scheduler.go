package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/consignments/internal/config"
)

const sweepSchedule = "@every 5m"

// Exporter writes the previous month's accounting somewhere durable.
type Exporter interface {
	ExportPreviousMonth(ctx context.Context) (int, error)
}

// Sweeper discards client workspaces nobody has used for a while.
type Sweeper interface {
	SweepIdle(maxIdle time.Duration) int
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	exporter Exporter
	sweeper  Sweeper
	cfg      config.Config
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance. A nil exporter disables the
// monthly export. Schedules are evaluated in loc.
func NewScheduler(cfg config.Config, exporter Exporter, sweeper Sweeper, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		exporter: exporter,
		sweeper:  sweeper,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if _, err := s.cron.AddFunc(sweepSchedule, s.sweepIdle); err != nil {
		return fmt.Errorf("schedule idle sweep: %w", err)
	}

	if s.exporter != nil {
		if _, err := s.cron.AddFunc(s.cfg.Reporting.CronSchedule, s.exportAccounts); err != nil {
			return fmt.Errorf("schedule accounting export %q: %w", s.cfg.Reporting.CronSchedule, err)
		}
	} else {
		s.logger.Warn("sheets not configured, accounting export disabled")
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) exportAccounts() {
	s.logger.Info("exporting monthly accounting")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rows, err := s.exporter.ExportPreviousMonth(ctx)
	if err != nil {
		s.logger.Error("failed to export accounting", zap.Error(err))
		return
	}
	s.logger.Info("accounting export finished", zap.Int("rows", rows))
}

func (s *Scheduler) sweepIdle() {
	if closed := s.sweeper.SweepIdle(s.cfg.Auth.IdleTimeout); closed > 0 {
		s.logger.Debug("idle sweep", zap.Int("closed", closed))
	}
}
