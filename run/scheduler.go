package run

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teranos/keelwatch/config"
	"github.com/teranos/keelwatch/detailq"
	"github.com/teranos/keelwatch/errors"
)

// Scheduler drives the orchestrator on cron cadences and keeps the detail
// worker pools running between scheduled runs. One scheduler per process.
type Scheduler struct {
	orch   *Orchestrator
	cfg    *config.Config
	cron   *cron.Cron
	pools  []*detailq.WorkerPool
	logger *zap.SugaredLogger

	cancel context.CancelFunc
}

func NewScheduler(orch *Orchestrator, cfg *config.Config, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		orch:   orch,
		cfg:    cfg,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the cron entries and spins up one worker pool per enabled
// source. Returns once everything is scheduled; Stop tears it down.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	sources := s.cfg.EnabledSources()
	if len(sources) == 0 {
		cancel()
		return errors.New("no enabled sources to schedule")
	}

	if _, err := s.cron.AddFunc(s.cfg.Scheduler.DetectCron, func() {
		if _, err := s.orch.Detect(ctx, sources); err != nil {
			s.logger.Errorw("Scheduled detect run failed", "error", err)
		}
	}); err != nil {
		cancel()
		return errors.Wrap(err, "failed to schedule detect runs")
	}

	if _, err := s.cron.AddFunc(s.cfg.Scheduler.ReconcileCron, func() {
		if _, err := s.orch.Reconcile(ctx, sources); err != nil {
			s.logger.Errorw("Scheduled reconcile run failed", "error", err)
		}
	}); err != nil {
		cancel()
		return errors.Wrap(err, "failed to schedule reconcile runs")
	}

	// Hourly housekeeping: dead-letter jobs past the age ceiling, drop
	// staged rows and run rows past retention.
	if _, err := s.cron.AddFunc("@hourly", func() {
		maxAge := time.Duration(s.cfg.Queue.MaxJobAgeHours) * time.Hour
		if expired, err := s.orch.Queue().ExpireStale(ctx, maxAge); err != nil {
			s.logger.Errorw("Queue expiry sweep failed", "error", err)
		} else if expired > 0 {
			s.logger.Infow("Expired stale detail jobs", "count", expired)
		}
		if err := s.orch.SweepRetention(ctx); err != nil {
			s.logger.Errorw("Retention sweep failed", "error", err)
		}
	}); err != nil {
		cancel()
		return errors.Wrap(err, "failed to schedule housekeeping")
	}

	executor := s.orch.DetailExecutor()
	for _, source := range sources {
		poolCfg := detailq.DefaultWorkerPoolConfig(source)
		poolCfg.Workers = s.cfg.Queue.Workers
		poolCfg.ClaimBatch = s.cfg.Queue.ClaimBatchSize
		poolCfg.LeaseDuration = time.Duration(s.cfg.Queue.LeaseDurationSeconds) * time.Second
		poolCfg.PollInterval = time.Duration(s.cfg.Queue.PollIntervalSeconds) * time.Second

		pool := detailq.NewWorkerPool(ctx, s.orch.Queue(), poolCfg, executor, s.logger)
		pool.Start()
		s.pools = append(s.pools, pool)
	}

	s.cron.Start()
	s.logger.Infow("Scheduler started",
		"sources", sources,
		"detect_cron", s.cfg.Scheduler.DetectCron,
		"reconcile_cron", s.cfg.Scheduler.ReconcileCron,
		"workers_per_source", s.cfg.Queue.Workers,
		"shadow", s.cfg.Shadow)
	return nil
}

// Reload applies runtime-tunable settings from a freshly loaded config.
// Cron cadences and worker counts need a restart; the per-run knobs
// (removal threshold, lease duration, retry budget, rate limits) take
// effect on the next run.
func (s *Scheduler) Reload(next *config.Config) {
	cadenceChanged := next.Scheduler != s.cfg.Scheduler || next.Queue.Workers != s.cfg.Queue.Workers

	s.cfg.Health = next.Health
	s.cfg.Queue = next.Queue
	s.cfg.Collector = next.Collector
	s.cfg.Staging = next.Staging

	s.logger.Infow("Runtime config reloaded",
		"removal_threshold", s.cfg.Health.RemovalThreshold,
		"lease_seconds", s.cfg.Queue.LeaseDurationSeconds,
		"queue_max_retries", s.cfg.Queue.MaxRetries)

	if cadenceChanged {
		s.logger.Warnw("Cron cadences and worker counts need a daemon restart to change")
	}
}

// Stop halts cron scheduling, cancels in-flight runs and drains the worker
// pools. Blocks until workers have exited.
func (s *Scheduler) Stop() {
	cronCtx := s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	s.stopPools()
	<-cronCtx.Done()
	s.logger.Infow("Scheduler stopped")
}

func (s *Scheduler) stopPools() {
	for _, pool := range s.pools {
		pool.Stop()
	}
	s.pools = nil
}
