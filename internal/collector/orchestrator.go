// Package collector contains the orchestrator driving the per-source
// collection pipeline: fetch → normalize → validate → dedupe → persist →
// record. It owns the source registry and enforces at most one in-flight
// collection per source.
package collector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"studentjobs/collector-service/internal/dedupe"
	"studentjobs/collector-service/internal/model"
	"studentjobs/collector-service/internal/normalize"
	"studentjobs/collector-service/internal/source"
	"studentjobs/collector-service/internal/store"
	"studentjobs/collector-service/internal/validate"
)

// inflightRun is the coalescing handle for one running collection. A second
// trigger for the same source awaits done and shares the outcome.
type inflightRun struct {
	done   chan struct{}
	result *model.CollectionResult
	err    error
}

// Orchestrator coordinates collection across all registered sources.
// Construct with New; register adapters before triggering collections.
type Orchestrator struct {
	normalizer *normalize.Normalizer
	validator  *validate.Validator
	dedup      *dedupe.Deduplicator
	jobs       store.JobStore
	results    store.ResultLog
	log        *zap.SugaredLogger

	mu         sync.Mutex
	registry   map[string]*registeredSource
	inflight   map[string]*inflightRun
	reschedule func(model.SourceConfig) error
}

// registeredSource pairs an adapter with its current configuration. The
// config here is authoritative after startup; UpdateSource is the only
// mutator.
type registeredSource struct {
	adapter source.Adapter
	cfg     model.SourceConfig
}

// New constructs an Orchestrator.
func New(
	normalizer *normalize.Normalizer,
	validator *validate.Validator,
	dedup *dedupe.Deduplicator,
	jobs store.JobStore,
	results store.ResultLog,
	log *zap.SugaredLogger,
) *Orchestrator {
	return &Orchestrator{
		normalizer: normalizer,
		validator:  validator,
		dedup:      dedup,
		jobs:       jobs,
		results:    results,
		log:        log.Named("collector"),
		registry:   map[string]*registeredSource{},
		inflight:   map[string]*inflightRun{},
	}
}

// RegisterSource adds an adapter to the registry after initializing it.
// Registering the same source id twice is a configuration error.
func (o *Orchestrator) RegisterSource(ctx context.Context, adapter source.Adapter) error {
	id := adapter.SourceID()

	o.mu.Lock()
	_, exists := o.registry[id]
	o.mu.Unlock()
	if exists {
		return errors.Newf("source %s already registered", id)
	}

	if err := adapter.Initialize(ctx); err != nil {
		return errors.Wrapf(err, "initialize source %s", id)
	}

	o.mu.Lock()
	o.registry[id] = &registeredSource{adapter: adapter, cfg: adapter.Config()}
	o.mu.Unlock()

	o.log.Infow("source registered", "source", id, "kind", adapter.Config().Kind)
	return nil
}

// SetRescheduler wires the scheduler callback invoked when a source config
// update changes its schedule. Called once from the composition root.
func (o *Orchestrator) SetRescheduler(fn func(model.SourceConfig) error) {
	o.mu.Lock()
	o.reschedule = fn
	o.mu.Unlock()
}

// Sources returns the registered source configs.
func (o *Orchestrator) Sources() []model.SourceConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	configs := make([]model.SourceConfig, 0, len(o.registry))
	for _, src := range o.registry {
		configs = append(configs, src.cfg)
	}
	return configs
}

// CollectFromSource runs the full pipeline for one source. A concurrent
// trigger for a source that is already collecting does not start a second
// run: it awaits the in-flight run and returns its outcome.
func (o *Orchestrator) CollectFromSource(ctx context.Context, sourceID string) (*model.CollectionResult, error) {
	o.mu.Lock()
	src, ok := o.registry[sourceID]
	if !ok {
		o.mu.Unlock()
		return nil, errors.Newf("unknown source %q", sourceID)
	}
	if run, running := o.inflight[sourceID]; running {
		o.mu.Unlock()
		o.log.Debugw("coalescing trigger onto in-flight run", "source", sourceID)
		select {
		case <-run.done:
			return run.result, run.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	run := &inflightRun{done: make(chan struct{})}
	o.inflight[sourceID] = run
	adapter, cfg := src.adapter, src.cfg // copied under the lock; UpdateSource mutates src.cfg
	o.mu.Unlock()

	// The marker release is unconditional: whatever happens inside the run,
	// the source returns to idle.
	defer func() {
		o.mu.Lock()
		delete(o.inflight, sourceID)
		o.mu.Unlock()
		close(run.done)
	}()

	run.result, run.err = o.runPipeline(ctx, adapter, cfg)
	return run.result, run.err
}

// CollectFromAllSources collects from every enabled source in descending
// priority order. One source's failure never aborts the batch.
func (o *Orchestrator) CollectFromAllSources(ctx context.Context) []*model.CollectionResult {
	o.mu.Lock()
	enabled := make([]model.SourceConfig, 0, len(o.registry))
	for _, src := range o.registry {
		if src.cfg.Enabled {
			enabled = append(enabled, src.cfg)
		}
	}
	o.mu.Unlock()

	sort.Slice(enabled, func(i, j int) bool {
		return enabled[i].Priority > enabled[j].Priority
	})

	var results []*model.CollectionResult
	for _, cfg := range enabled {
		result, err := o.CollectFromSource(ctx, cfg.ID)
		if err != nil {
			o.log.Errorw("source collection failed", "source", cfg.ID, "error", err)
			continue
		}
		results = append(results, result)
	}
	return results
}

// UpdateSource replaces a source's configuration, pushes it into the adapter
// and reschedules. Only this operation mutates registry configs after
// startup; a run already in flight finishes on the config it started with.
func (o *Orchestrator) UpdateSource(cfg model.SourceConfig) error {
	o.mu.Lock()
	src, ok := o.registry[cfg.ID]
	if ok {
		src.cfg = cfg
	}
	reschedule := o.reschedule
	o.mu.Unlock()
	if !ok {
		return errors.Newf("unknown source %q", cfg.ID)
	}

	src.adapter.UpdateConfig(cfg)

	if reschedule != nil {
		if err := reschedule(cfg); err != nil {
			return errors.Wrapf(err, "reschedule source %s", cfg.ID)
		}
	}
	o.log.Infow("source config updated", "source", cfg.ID, "schedule", cfg.Schedule)
	return nil
}

// ── Pipeline ───────────────────────────────────────────────────────────────

func (o *Orchestrator) runPipeline(ctx context.Context, adapter source.Adapter, cfg model.SourceConfig) (result *model.CollectionResult, err error) {
	started := time.Now()

	result = &model.CollectionResult{
		RunID:     uuid.NewString(),
		SourceID:  cfg.ID,
		Timestamp: started.UTC(),
		Status:    model.StatusSuccess,
	}

	log := o.log.With("source", cfg.ID, "run", result.RunID)

	// Anything unexpected escaping a pipeline stage is caught here: the run
	// settles as a failure and the in-flight marker is still released by the
	// caller.
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("panic in collection pipeline", "panic", r)
			result.Status = model.StatusFailure
			result.AddError("pipeline_panic", errors.Newf("%v", r).Error(), model.ErrCritical, nil)
		}
		result.DurationMs = time.Since(started).Milliseconds()
		o.appendResult(ctx, log, result)
	}()

	// 1. Pre-flight structural check for scrapers. Non-fatal: collection
	//    proceeds regardless; high-impact changes were already notified by
	//    the detector.
	if cfg.Kind == model.KindScraper {
		if change, cerr := adapter.DetectStructuralChanges(ctx); cerr != nil {
			log.Warnw("change detection failed", "error", cerr)
			result.AddError("change_detection_failed", cerr.Error(), model.ErrWarning, nil)
		} else if change.Status != model.ChangeUnchanged {
			log.Warnw("structural change before collection",
				"status", change.Status, "canAdapt", change.CanAdaptAutomatically)
			result.AddError("structural_change", string(change.Status), model.ErrWarning,
				map[string]any{"canAdaptAutomatically": change.CanAdaptAutomatically})
		}
	}

	// 2. Fetch.
	output, err := adapter.Collect(ctx)
	result.Errors = append(result.Errors, output.Errors...)
	result.JobsCollected = len(output.Jobs)
	if err != nil {
		log.Errorw("collection failed", "error", err)
		result.Status = model.StatusFailure
		result.AddError("collect_failed", err.Error(), model.ErrCritical, nil)
		return result, nil
	}
	if len(output.Errors) > 0 {
		result.Status = model.StatusPartial
	}

	// 3. Normalize.
	jobs := o.normalizer.TransformAll(output.Jobs)
	result.JobsProcessed = len(jobs)

	// 4. Validate. Error-severity records are kept in the result for
	//    operator review but excluded from storage.
	storable := make([]model.CanonicalJob, 0, len(jobs))
	for i := range jobs {
		res := o.validator.Validate(&jobs[i])
		jobs[i].CollectingMetadata.ValidationIssues = res.Issues
		if res.Valid {
			storable = append(storable, jobs[i])
		} else {
			result.ValidationFailures++
		}
	}
	result.Jobs = jobs
	if result.ValidationFailures > 0 {
		log.Warnw("records failed validation", "failed", result.ValidationFailures, "total", len(jobs))
	}

	// 5. Dedupe against existing storage.
	existing, err := o.jobs.GetExisting(ctx)
	if err != nil {
		log.Errorw("loading existing jobs failed", "error", err)
		result.Status = model.StatusFailure
		result.AddError("load_existing_failed", err.Error(), model.ErrCritical, nil)
		return result, nil
	}
	partition := o.dedup.PartitionJobs(storable, existing)

	// 6. Persist creates then updates. A persistence failure downgrades the
	//    run to partial only when nothing at all was stored.
	stored := 0
	if n, perr := o.jobs.CreateMany(ctx, partition.Creates); perr != nil {
		result.AddError("create_failed", perr.Error(), model.ErrError, nil)
	} else {
		stored += n
	}
	if n, perr := o.jobs.UpdateMany(ctx, partition.Updates); perr != nil {
		result.AddError("update_failed", perr.Error(), model.ErrError, nil)
	} else {
		stored += n
	}
	result.JobsStored = stored
	if stored == 0 && len(storable) > 0 && result.Status == model.StatusSuccess {
		result.Status = model.StatusPartial
	}

	log.Infow("collection run complete",
		"status", result.Status,
		"collected", result.JobsCollected,
		"stored", result.JobsStored,
		"creates", len(partition.Creates),
		"updates", len(partition.Updates),
		"validationFailures", result.ValidationFailures)
	return result, nil
}

// appendResult writes the run to the append-only result log, truncating
// per-job payloads to summaries so log entries stay small.
func (o *Orchestrator) appendResult(ctx context.Context, log *zap.SugaredLogger, result *model.CollectionResult) {
	entry := *result
	entry.Jobs = summarize(result.Jobs)
	if err := o.results.Append(ctx, entry); err != nil {
		log.Errorw("appending collection result failed", "error", err)
	}
}

// summarize strips bulky content fields, keeping identity, scores and
// validation issues.
func summarize(jobs []model.CanonicalJob) []model.CanonicalJob {
	out := make([]model.CanonicalJob, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, model.CanonicalJob{
			ExternalID:         j.ExternalID,
			Source:             j.Source,
			Title:              j.Title,
			SourceURL:          j.SourceURL,
			Company:            model.Company{Name: j.Company.Name},
			PublicationDate:    j.PublicationDate,
			QualityScore:       j.QualityScore,
			Metadata:           map[string]any{"studentRelevanceScore": j.StudentRelevanceScore()},
			CollectingMetadata: j.CollectingMetadata,
		})
	}
	return out
}
