package sync

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// syncTimeout bounds one scheduled run.
const syncTimeout = 2 * time.Minute

// Scheduler drives periodic syncs on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	running bool
	jobs    int
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), logger: logger}
}

// AddSync registers a syncer under a cron spec such as "*/5 * * * *".
func (s *Scheduler) AddSync(spec string, syncer *Syncer) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		if err := syncer.SyncOnce(ctx); err != nil {
			s.logger.Error("scheduled sync failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.jobs++
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", zap.Int("jobs", s.jobs))
}

// Stop halts scheduling without waiting for in-flight jobs.
func (s *Scheduler) Stop() {
	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// Running reports scheduler state for the status endpoint.
func (s *Scheduler) Running() bool { return s.running }

// Jobs reports the number of registered jobs.
func (s *Scheduler) Jobs() int { return s.jobs }
