// Package store defines the persistence collaborators of the collection
// pipeline and their Postgres/Redis implementations.
package store

import (
	"context"

	"go.uber.org/zap"

	"studentjobs/collector-service/internal/model"
)

// JobStore is the job persistence collaborator. Implementations must be
// upsert-safe by (source, externalId).
type JobStore interface {
	GetExisting(ctx context.Context) ([]model.CanonicalJob, error)
	CreateMany(ctx context.Context, jobs []model.CanonicalJob) (int, error)
	UpdateMany(ctx context.Context, jobs []model.CanonicalJob) (int, error)
}

// ResultLog is the append-only log of collection runs. Entries are never
// rewritten once appended.
type ResultLog interface {
	Append(ctx context.Context, result model.CollectionResult) error
}

// FingerprintStore persists structural fingerprints and raw page snapshots,
// keyed by source+role. Get returns (nil, nil) when no fingerprint exists.
type FingerprintStore interface {
	Get(ctx context.Context, sourceID, role string) (*model.StructuralFingerprint, error)
	Save(ctx context.Context, fp model.StructuralFingerprint) error
	SaveSnapshot(ctx context.Context, sourceID, role string, page []byte) error
}

// NotificationSink receives fire-and-forget alerts for high-impact
// structural changes. Swappable for email/chat integrations.
type NotificationSink interface {
	Notify(ctx context.Context, sourceID string, changes []model.SelectorChange)
}

// LogNotifier is the default NotificationSink: it writes alerts to the log.
type LogNotifier struct {
	log *zap.SugaredLogger
}

// NewLogNotifier constructs a log-backed notification sink.
func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

// Notify logs one warning per high-impact change.
func (n *LogNotifier) Notify(_ context.Context, sourceID string, changes []model.SelectorChange) {
	for _, ch := range changes {
		n.log.Warnw("structural change detected",
			"source", sourceID,
			"selector", ch.Selector,
			"impact", ch.Impact,
			"description", ch.Description)
	}
}
