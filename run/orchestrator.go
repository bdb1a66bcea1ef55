package run

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/keelwatch/apply"
	"github.com/teranos/keelwatch/collector"
	"github.com/teranos/keelwatch/config"
	"github.com/teranos/keelwatch/detailq"
	"github.com/teranos/keelwatch/diff"
	"github.com/teranos/keelwatch/errors"
	"github.com/teranos/keelwatch/health"
	"github.com/teranos/keelwatch/staging"
	"github.com/teranos/keelwatch/vessel"
)

// Orchestrator sequences the pipeline per invocation. Runs share no
// in-memory state; all coordination happens through the durable stores, so
// independent processes can invoke run types concurrently.
type Orchestrator struct {
	cfg       *config.Config
	collector collector.Collector
	staging   *staging.Store
	vessels   *vessel.Store
	healthSt  *health.Store
	queue     *detailq.Store
	runs      *Store
	locks     *SourceLock
	applier   *apply.Applier
	logger    *zap.SugaredLogger
}

// NewOrchestrator wires an orchestrator over one database handle. Shadow
// mode comes from the config and is carried by the applier.
func NewOrchestrator(db *sql.DB, cfg *config.Config, col collector.Collector, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		collector: col,
		staging:   staging.NewStore(db),
		vessels:   vessel.NewStore(db),
		healthSt:  health.NewStore(db),
		queue:     detailq.NewStore(db, cfg.Queue.MaxRetries),
		runs:      NewStore(db),
		locks:     NewSourceLock(db),
		applier:   apply.NewApplier(db, logger, cfg.Shadow),
		logger:    logger,
	}
}

// Runs exposes the run ledger store
func (o *Orchestrator) Runs() *Store {
	return o.runs
}

// Queue exposes the detail queue store
func (o *Orchestrator) Queue() *detailq.Store {
	return o.queue
}

// Detect performs one cheap listing-page pass over the given sources:
// stage, diff without removal candidates, apply, enqueue detail fetches.
func (o *Orchestrator) Detect(ctx context.Context, sources []string) (*Run, error) {
	r := o.newRun(diff.RunDetect, sources)
	if err := o.runs.Create(context.WithoutCancel(ctx), r); err != nil {
		return nil, err
	}

	o.logger.Infow("Detect run started",
		"run_id", r.ID,
		"sources", len(sources),
		"shadow", o.applier.Shadow())

	var runErr error
	for _, source := range sources {
		if ctx.Err() != nil {
			break
		}
		healthy, err := o.detectSource(ctx, r, source)
		r.SourceHealth[source] = healthy
		if err != nil {
			runErr = err
			break
		}
	}

	return r, o.finalize(ctx, r, runErr)
}

// detectSource runs the detect path for one source. The returned error is
// run-aborting (apply/invariant failures); collector errors only degrade
// the source to unhealthy.
func (o *Orchestrator) detectSource(ctx context.Context, r *Run, source string) (bool, error) {
	if err := o.locks.Acquire(ctx, source, r.ID, DefaultLockTTL); err != nil {
		o.logger.Warnw("Source locked, skipping",
			"run_id", r.ID,
			"source", source,
			"error", err)
		return false, nil
	}
	defer o.locks.Release(ctx, source, r.ID)

	listings, err := o.collector.FetchListings(ctx, source)
	if err != nil {
		o.logger.Warnw("Listing scan failed",
			"run_id", r.ID,
			"source", source,
			"error", err)
		return false, nil
	}

	if err := o.staging.StageListings(ctx, r.ID, source, listings); err != nil {
		return false, err
	}

	events, err := o.diffStaged(ctx, r.ID, source, diff.RunDetect, listings)
	if err != nil {
		return false, err
	}

	if err := o.applyAndEnqueue(ctx, r, source, events); err != nil {
		return false, err
	}

	o.resetObservedMisses(ctx, r.ID, source, listings)
	return true, nil
}

// Reconcile performs a full listing scan per source, including removal
// candidates, health tracking and gated removals. The only run type
// authorized to mark vessels removed.
func (o *Orchestrator) Reconcile(ctx context.Context, sources []string) (*Run, error) {
	r := o.newRun(diff.RunReconcile, sources)
	if err := o.runs.Create(context.WithoutCancel(ctx), r); err != nil {
		return nil, err
	}

	o.logger.Infow("Reconcile run started",
		"run_id", r.ID,
		"sources", len(sources),
		"shadow", o.applier.Shadow())

	var runErr error
	for _, source := range sources {
		if ctx.Err() != nil {
			break
		}
		healthy, err := o.reconcileSource(ctx, r, source)
		r.SourceHealth[source] = healthy
		if err != nil {
			runErr = err
			break
		}
	}

	return r, o.finalize(ctx, r, runErr)
}

func (o *Orchestrator) reconcileSource(ctx context.Context, r *Run, source string) (bool, error) {
	if err := o.locks.Acquire(ctx, source, r.ID, DefaultLockTTL); err != nil {
		o.logger.Warnw("Source locked, skipping",
			"run_id", r.ID,
			"source", source,
			"error", err)
		return false, nil
	}
	defer o.locks.Release(ctx, source, r.ID)

	recordedAt := time.Now().UTC()

	listings, err := o.collector.FetchListings(ctx, source)
	if err != nil {
		// Unhealthy scan: no miss increments, no removals. A broken scrape
		// must not look like a fleet-wide disappearance.
		o.logger.Warnw("Reconcile scan failed, source unhealthy",
			"run_id", r.ID,
			"source", source,
			"error", err)
		o.recordReconcileHealth(ctx, source, false, recordedAt)
		return false, nil
	}

	if err := o.staging.StageListings(ctx, r.ID, source, listings); err != nil {
		return false, err
	}

	events, err := o.diffStaged(ctx, r.ID, source, diff.RunReconcile, listings)
	if err != nil {
		return false, err
	}

	if err := o.applyAndEnqueue(ctx, r, source, events); err != nil {
		return false, err
	}

	// Health tracking: fold this run's observations and candidates into the
	// miss counters, then apply whatever removals crossed the threshold.
	observed := make([]string, 0, len(listings))
	for _, l := range listings {
		observed = append(observed, l.VesselKey)
	}
	var candidates []string
	for _, e := range events {
		if e.Type == diff.EventRemovalCandidate {
			candidates = append(candidates, e.VesselKey)
		}
	}

	misses, err := o.healthSt.LoadMisses(ctx, source)
	if err != nil {
		return false, err
	}
	tracked := health.Apply(misses, observed, candidates, true, o.cfg.Health.RemovalThreshold)

	if o.applier.Shadow() {
		// Parity logging only; counters stay untouched.
		o.logger.Infow("Shadow reconcile health result",
			"run_id", r.ID,
			"source", source,
			"pending_misses", len(tracked.Misses),
			"removals", len(tracked.Removals))
	} else {
		if err := o.healthSt.ReplaceMisses(ctx, source, r.ID, tracked.Misses); err != nil {
			return false, err
		}
		o.recordReconcileHealth(ctx, source, true, recordedAt)
	}

	if len(tracked.Removals) > 0 {
		result, err := o.applier.ApplyRemovals(ctx, r.ID, source, diff.RunReconcile, true, tracked.Removals)
		if err != nil {
			return false, err
		}
		o.logger.Infow("Removals applied",
			"run_id", r.ID,
			"source", source,
			"removed", result.Applied,
			"shadow", o.applier.Shadow())
	}

	return true, nil
}

// DetailWorker claims up to limit pending detail jobs across the given
// sources and processes them in one run. Per-job failures are isolated:
// they feed the job's retry budget, not the run status.
func (o *Orchestrator) DetailWorker(ctx context.Context, sources []string, limit int) (*Run, error) {
	r := o.newRun(diff.RunDetailWorker, sources)
	if err := o.runs.Create(context.WithoutCancel(ctx), r); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = o.cfg.Queue.ClaimBatchSize
	}
	leaseDuration := time.Duration(o.cfg.Queue.LeaseDurationSeconds) * time.Second

	var runErr error
	processed := 0
	for _, source := range sources {
		if ctx.Err() != nil || limit <= 0 {
			break
		}

		jobs, err := o.queue.ClaimJobs(ctx, source, r.ID, limit, leaseDuration)
		if err != nil {
			runErr = err
			break
		}
		limit -= len(jobs)
		r.SourceHealth[source] = true

		for _, job := range jobs {
			if ctx.Err() != nil {
				break
			}
			o.settleDetailJob(ctx, r.ID, job)
			processed++
		}
	}

	o.logger.Infow("Detail worker run finished",
		"run_id", r.ID,
		"claimed", processed)

	return r, o.finalize(ctx, r, runErr)
}

// settleDetailJob executes one detail job and records its outcome on the
// queue, mirroring the worker pool's completion semantics.
func (o *Orchestrator) settleDetailJob(ctx context.Context, runID string, job *detailq.Job) {
	err := o.processDetailJob(ctx, runID, job)
	if err == nil {
		if err := o.queue.Complete(ctx, job.ID); err != nil {
			o.logger.Errorw("Failed to mark detail job done",
				"job_id", job.ID,
				"error", err)
		}
		return
	}

	retryable := errors.IsRetryable(err)
	o.logger.Warnw("Detail job failed",
		"run_id", runID,
		"job_id", job.ID,
		"vessel_key", job.VesselKey,
		"retryable", retryable,
		"error", err)
	if err := o.queue.Fail(ctx, job.ID, err, retryable); err != nil {
		o.logger.Errorw("Failed to record detail job failure",
			"job_id", job.ID,
			"error", err)
	}
}

// processDetailJob fetches, stages, diffs and applies one vessel's detail.
// Queue bookkeeping is the caller's job.
func (o *Orchestrator) processDetailJob(ctx context.Context, runID string, job *detailq.Job) error {
	detail, err := o.collector.FetchDetail(ctx, job.Source, job.VesselKey)
	if err != nil {
		return err
	}

	if err := o.staging.StageDetails(ctx, runID, job.Source, []staging.DetailObservation{*detail}); err != nil {
		return err
	}

	listing := detail.Listing()
	events, err := o.diffStaged(ctx, runID, job.Source, diff.RunDetailWorker, []staging.ListingObservation{listing})
	if err != nil {
		return err
	}

	if _, err := o.applier.Apply(ctx, events); err != nil {
		return err
	}

	o.resetObservedMisses(ctx, runID, job.Source, []staging.ListingObservation{listing})
	return nil
}

// DetailExecutor adapts the orchestrator for the long-running worker pool.
// Each executed job gets its own single-job run so every durable write
// stays scoped by (run_id, source).
func (o *Orchestrator) DetailExecutor() detailq.JobExecutor {
	return &detailExecutor{o: o}
}

type detailExecutor struct {
	o *Orchestrator
}

func (e *detailExecutor) Execute(ctx context.Context, job *detailq.Job) error {
	r := e.o.newRun(diff.RunDetailWorker, []string{job.Source})
	if err := e.o.runs.Create(ctx, r); err != nil {
		return err
	}

	jobErr := e.o.processDetailJob(ctx, r.ID, job)
	r.SourceHealth[job.Source] = jobErr == nil

	if err := e.o.finalize(ctx, r, nil); err != nil {
		e.o.logger.Errorw("Failed to finalize detail job run",
			"run_id", r.ID,
			"error", err)
	}
	return jobErr
}

// SweepRetention purges staged rows and finalized run rows past the
// configured retention window. Advisory cleanup, safe to run any time.
func (o *Orchestrator) SweepRetention(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(o.cfg.Staging.RetentionHours) * time.Hour)

	staged, err := o.staging.Purge(ctx, cutoff)
	if err != nil {
		return err
	}
	runs, err := o.runs.PurgeOld(ctx, cutoff)
	if err != nil {
		return err
	}

	if staged > 0 || runs > 0 {
		o.logger.Infow("Retention sweep complete",
			"staged", staged,
			"runs", runs)
	}
	return nil
}

func (o *Orchestrator) newRun(runType diff.RunType, sources []string) *Run {
	mode := ModeAuthoritative
	if o.cfg.Shadow {
		mode = ModeShadow
	}
	return &Run{
		ID:           NewRunID(),
		Type:         runType,
		Mode:         mode,
		Sources:      sources,
		Status:       StatusRunning,
		SourceHealth: make(map[string]bool, len(sources)),
		StartedAt:    time.Now().UTC(),
	}
}

// diffStaged computes the diff for already-staged observations against the
// current authoritative snapshot.
func (o *Orchestrator) diffStaged(ctx context.Context, runID, source string, runType diff.RunType, listings []staging.ListingObservation) ([]diff.Event, error) {
	authoritative, err := o.vessels.MapBySource(ctx, source)
	if err != nil {
		return nil, err
	}
	return diff.Compute(runID, source, runType, listings, authoritative, time.Now().UTC()), nil
}

// applyAndEnqueue commits non-removal events and queues detail fetches for
// new-or-changed vessels.
func (o *Orchestrator) applyAndEnqueue(ctx context.Context, r *Run, source string, events []diff.Event) error {
	result, err := o.applier.Apply(ctx, events)
	if err != nil {
		return err
	}

	var candidates []detailq.Candidate
	for _, e := range events {
		if e.Type.NeedsDetail() {
			candidates = append(candidates, detailq.Candidate{VesselKey: e.VesselKey, Reason: string(e.Type)})
		}
	}

	enqueued := 0
	if !o.applier.Shadow() && len(candidates) > 0 {
		enqueued, err = o.queue.EnqueueCandidates(ctx, source, candidates)
		if err != nil {
			return err
		}
	}

	o.logger.Infow("Source diff applied",
		"run_id", r.ID,
		"source", source,
		"events", len(events),
		"applied", result.Applied,
		"duplicates", result.Duplicates,
		"enqueued", enqueued)
	return nil
}

// resetObservedMisses clears miss counters for vessels observed in any run
// type. Skipped in shadow mode with the rest of the durable writes.
func (o *Orchestrator) resetObservedMisses(ctx context.Context, runID, source string, listings []staging.ListingObservation) {
	if o.applier.Shadow() || len(listings) == 0 {
		return
	}

	misses, err := o.healthSt.LoadMisses(ctx, source)
	if err != nil {
		o.logger.Warnw("Failed to load miss counters",
			"source", source,
			"error", err)
		return
	}
	if len(misses) == 0 {
		return
	}

	observed := make([]string, 0, len(listings))
	for _, l := range listings {
		observed = append(observed, l.VesselKey)
	}
	next := health.ResetObserved(misses, observed)
	if len(next) == len(misses) {
		return
	}

	if err := o.healthSt.ReplaceMisses(ctx, source, runID, next); err != nil {
		o.logger.Warnw("Failed to reset miss counters",
			"source", source,
			"error", err)
	}
}

func (o *Orchestrator) recordReconcileHealth(ctx context.Context, source string, healthy bool, at time.Time) {
	if o.applier.Shadow() {
		return
	}
	if err := o.healthSt.RecordReconcile(ctx, source, healthy, at); err != nil {
		o.logger.Warnw("Failed to record reconcile health",
			"source", source,
			"error", err)
	}
}

// finalize computes the run's terminal status and records it. Uses a
// cancellation-immune context so an aborted run still gets its ledger row
// finalized.
func (o *Orchestrator) finalize(ctx context.Context, r *Run, runErr error) error {
	cancelled := ctx.Err() != nil

	healthy := 0
	for _, ok := range r.SourceHealth {
		if ok {
			healthy++
		}
	}

	switch {
	case runErr != nil:
		r.Status = StatusFailed
		r.Error = runErr.Error()
	case cancelled:
		// Applied events stay applied; the partial status suppresses any
		// health consequences downstream.
		r.Status = StatusPartial
		r.Error = ctx.Err().Error()
	case healthy == len(r.Sources):
		r.Status = StatusSucceeded
	case healthy == 0 && len(r.Sources) > 0:
		r.Status = StatusFailed
		r.Error = "all sources unhealthy"
	default:
		r.Status = StatusPartial
	}

	if err := o.runs.Finalize(context.WithoutCancel(ctx), r); err != nil {
		return err
	}

	o.logger.Infow("Run finalized",
		"run_id", r.ID,
		"status", r.Status,
		"duration_ms", time.Since(r.StartedAt).Milliseconds())

	if runErr != nil {
		return runErr
	}
	return nil
}
