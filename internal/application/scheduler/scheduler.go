// Package scheduler drives the maintenance routines on a fixed cron
// schedule, outside of any HTTP request. Grounded on the teacher's former
// CronScheduler: same robfig/cron, second-precision, UTC setup, trimmed from
// an arbitrary per-trigger schedule table down to the two fixed jobs this
// system needs.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oasst/treemanager/internal/application/maintenance"
	"github.com/oasst/treemanager/internal/config"
	"github.com/oasst/treemanager/internal/infrastructure/logger"
)

// Scheduler runs Maintenance.EnsureTreeStates and Maintenance.RetryScoringFailed
// on the cron expressions named in config.SchedulerConfig.
type Scheduler struct {
	cron        *cron.Cron
	maintenance *maintenance.Maintenance
	cfg         config.SchedulerConfig
	log         *logger.Logger
}

func New(cfg config.SchedulerConfig, m *maintenance.Maintenance, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		maintenance: m,
		cfg:         cfg,
		log:         log,
	}
}

// Start registers both maintenance jobs and starts the cron loop. A no-op
// when the scheduler is disabled in config.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled, maintenance routines will not run on a timer")
		return nil
	}

	if _, err := s.cron.AddJob(s.cfg.EnsureTreeStatesCron, s.job("ensure_tree_states", s.maintenance.EnsureTreeStates)); err != nil {
		return err
	}
	if _, err := s.cron.AddJob(s.cfg.RetryScoringFailedCron, s.job("retry_scoring_failed", s.maintenance.RetryScoringFailed)); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("scheduler started", "ensure_tree_states_cron", s.cfg.EnsureTreeStatesCron, "retry_scoring_failed_cron", s.cfg.RetryScoringFailedCron)
	return nil
}

// Stop waits for any in-flight job to finish before returning.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) job(name string, fn func(context.Context) error) cron.Job {
	return cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.log.ErrorContext(ctx, "maintenance job failed", "job", name, "error", err)
		}
	})
}
