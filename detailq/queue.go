package detailq

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/keelwatch/errors"
)

// JobExecutor performs the detail fetch-stage-diff-apply cycle for one job.
// Errors marked with errors.MarkRetryable return the job to pending;
// everything else counts against the retry budget immediately.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers       int           `json:"workers"`         // Number of concurrent workers
	Source        string        `json:"source"`          // Source this pool drains
	ClaimBatch    int           `json:"claim_batch"`     // Jobs claimed per poll
	LeaseDuration time.Duration `json:"lease_duration"`  // Lease set on each claim
	PollInterval  time.Duration `json:"poll_interval"`   // Idle wait between claim attempts
}

// DefaultWorkerPoolConfig returns sensible worker pool defaults
func DefaultWorkerPoolConfig(source string) WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:       1,
		Source:        source,
		ClaimBatch:    5,
		LeaseDuration: 5 * time.Minute,
		PollInterval:  15 * time.Second,
	}
}

// WorkerPool drains the detail queue for one source with leased claims
type WorkerPool struct {
	store    *Store
	config   WorkerPoolConfig
	executor JobExecutor
	logger   *zap.SugaredLogger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWorkerPool creates a worker pool over the given store and executor
func NewWorkerPool(ctx context.Context, store *Store, cfg WorkerPoolConfig, executor JobExecutor, logger *zap.SugaredLogger) *WorkerPool {
	poolCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		store:    store,
		config:   cfg,
		executor: executor,
		logger:   logger,
		ctx:      poolCtx,
		cancel:   cancel,
	}
}

// Start releases orphaned leases from a previous process and spins up workers
func (wp *WorkerPool) Start() {
	released, err := wp.store.ReleaseOrphanedLeases(wp.ctx)
	if err != nil {
		wp.logger.Warnw("Failed to release orphaned leases",
			"source", wp.config.Source,
			"error", err)
	} else if released > 0 {
		wp.logger.Infow("Released orphaned leases",
			"source", wp.config.Source,
			"count", released)
	}

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.logger.Infow("Detail worker pool started",
		"source", wp.config.Source,
		"workers", wp.config.Workers)
}

// Stop signals workers and waits for in-flight jobs to finish
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Infow("Detail worker pool stopped",
		"source", wp.config.Source)
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	workerID := NewJobID() // worker identity for lease attribution
	wp.logger.Debugw("Detail worker started",
		"worker", id,
		"worker_id", workerID)

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		// Drain before sleeping so a full queue is not throttled to one
		// batch per poll interval.
		if err := wp.drainOnce(workerID); err != nil {
			wp.logger.Warnw("Detail worker claim cycle failed",
				"worker", id,
				"error", err)
		}

		select {
		case <-wp.ctx.Done():
			wp.logger.Debugw("Detail worker exiting", "worker", id)
			return
		case <-ticker.C:
		}
	}
}

// drainOnce claims and executes batches until the queue is empty
func (wp *WorkerPool) drainOnce(workerID string) error {
	for {
		if wp.ctx.Err() != nil {
			return nil
		}

		jobs, err := wp.store.ClaimJobs(wp.ctx, wp.config.Source, workerID, wp.config.ClaimBatch, wp.config.LeaseDuration)
		if err != nil {
			return errors.Wrap(err, "failed to claim detail jobs")
		}
		if len(jobs) == 0 {
			return nil
		}

		for _, job := range jobs {
			wp.processJob(job)
		}
	}
}

func (wp *WorkerPool) processJob(job *Job) {
	start := time.Now()

	err := wp.executor.Execute(wp.ctx, job)
	if err == nil {
		if err := wp.store.Complete(wp.ctx, job.ID); err != nil {
			wp.logger.Errorw("Failed to mark job done",
				"job_id", job.ID,
				"error", err)
		}
		wp.logger.Infow("Detail job completed",
			"job_id", job.ID,
			"vessel_key", job.VesselKey,
			"duration_ms", time.Since(start).Milliseconds())
		return
	}

	retryable := errors.IsRetryable(err)
	wp.logger.Warnw("Detail job failed",
		"job_id", job.ID,
		"vessel_key", job.VesselKey,
		"retryable", retryable,
		"error", err)

	if err := wp.store.Fail(wp.ctx, job.ID, err, retryable); err != nil {
		wp.logger.Errorw("Failed to record job failure",
			"job_id", job.ID,
			"error", err)
	}
}
