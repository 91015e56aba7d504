package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/config"
)

// Scheduler runs the retry jobs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *JobRunner
	logger *zap.Logger
}

// NewScheduler registers the jobs using cfg's specs. Specs carry a seconds field
// and run in UTC.
func NewScheduler(cfg config.SchedulerConfig, jobs *JobRunner, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		jobs:   jobs,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(cfg.RetrySMSSpec, jobs.RetryFailedSMS); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(cfg.RetryEmailSpec, jobs.RetryFailedEmail); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("retry scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("retry scheduler stopped")
}
