// Package scheduler translates per-source schedules into timed collection
// triggers. It wraps robfig/cron and owns the start/stop lifecycle; the
// collection logic itself lives behind the Trigger interface.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"studentjobs/collector-service/internal/model"
)

// Trigger is the orchestrator surface the scheduler drives.
type Trigger interface {
	CollectFromSource(ctx context.Context, sourceID string) (*model.CollectionResult, error)
}

// frequencySpecs maps the supported frequency labels to cron specs. Anything
// not listed here must be a valid cron expression.
var frequencySpecs = map[string]string{
	"hourly":  "@hourly",
	"daily":   "@daily",
	"weekly":  "@weekly",
	"every6h": "@every 6h",
}

// Scheduler wraps robfig/cron and manages per-source collection entries.
type Scheduler struct {
	cron    *cron.Cron
	trigger Trigger
	timeout time.Duration
	log     *zap.SugaredLogger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a Scheduler. runTimeout bounds each scheduled collection run.
func New(trigger Trigger, runTimeout time.Duration, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		trigger: trigger,
		timeout: runTimeout,
		log:     log.Named("scheduler"),
		entries: map[string]cron.EntryID{},
	}
}

// ScheduleSource registers a cron entry for the source. The schedule
// expression is validated here, synchronously: an invalid expression fails
// registration, never the first fire.
func (s *Scheduler) ScheduleSource(cfg model.SourceConfig) error {
	spec, err := resolveSpec(cfg.Schedule)
	if err != nil {
		return errors.Wrapf(err, "source %s", cfg.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[cfg.ID]; ok {
		s.cron.Remove(old)
	}

	sourceID := cfg.ID
	id, err := s.cron.AddFunc(spec, func() { s.fire(sourceID) })
	if err != nil {
		return errors.Wrapf(err, "schedule source %s", cfg.ID)
	}
	s.entries[cfg.ID] = id

	s.log.Infow("source scheduled", "source", cfg.ID, "spec", spec)
	return nil
}

// UpdateSchedule replaces the source's schedule expression.
func (s *Scheduler) UpdateSchedule(sourceID, expression string) error {
	s.mu.Lock()
	_, known := s.entries[sourceID]
	s.mu.Unlock()
	if !known {
		return errors.Newf("source %s is not scheduled", sourceID)
	}
	return s.ScheduleSource(model.SourceConfig{ID: sourceID, Schedule: expression})
}

// RunNow triggers a collection immediately, bypassing the schedule.
func (s *Scheduler) RunNow(ctx context.Context, sourceID string) (*model.CollectionResult, error) {
	return s.trigger.CollectFromSource(ctx, sourceID)
}

// StartAll starts the cron loop.
func (s *Scheduler) StartAll() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// StopAll halts future triggers. In-flight collection runs are not
// interrupted; they settle on their own.
func (s *Scheduler) StopAll() {
	s.cron.Stop()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) fire(sourceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.trigger.CollectFromSource(ctx, sourceID)
	if err != nil {
		s.log.Errorw("scheduled collection failed", "source", sourceID, "error", err)
		return
	}
	s.log.Infow("scheduled collection finished",
		"source", sourceID, "status", result.Status, "stored", result.JobsStored)
}

// resolveSpec maps a frequency label to its cron spec, or validates the
// input as a cron expression.
func resolveSpec(schedule string) (string, error) {
	if schedule == "" {
		return "", errors.New("empty schedule")
	}
	if spec, ok := frequencySpecs[schedule]; ok {
		return spec, nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return "", errors.Wrapf(err, "invalid cron expression %q", schedule)
	}
	return schedule, nil
}
