// Package source implements the adapters that fetch raw data from external
// job sources and convert it to canonical records. Two variants exist: an
// OAuth-authenticated API adapter with offset pagination, and a selector-
// driven scraper adapter with structural-change detection.
package source

import (
	"context"

	"studentjobs/collector-service/internal/model"
)

// Output is what one adapter run produces: canonical records plus the
// failures contained along the way. The orchestrator folds it into the run's
// CollectionResult.
type Output struct {
	Jobs   []model.CanonicalJob
	Errors []model.ErrorDetails
}

// Adapter is the closed set of source variants the orchestrator drives.
// Implementations: APIAdapter, ScraperAdapter.
type Adapter interface {
	// SourceID returns the configured source id.
	SourceID() string
	// Config returns the adapter's current source configuration.
	Config() model.SourceConfig
	// UpdateConfig replaces the adapter's configuration. Runs started before
	// the call finish under the old settings; the next run observes the new
	// ones.
	UpdateConfig(cfg model.SourceConfig)
	// Initialize prepares auth/session state. It fails when required
	// credentials are absent; that failure is fatal for the source.
	Initialize(ctx context.Context) error
	// TestConnection is a non-throwing liveness probe.
	TestConnection(ctx context.Context) bool
	// Collect performs one full fetch-and-transform run. The returned error
	// is reserved for critical failures (auth, configuration); partial
	// failures are contained in Output.Errors.
	Collect(ctx context.Context) (Output, error)
	// DetectStructuralChanges checks whether the source's page structure has
	// drifted. API sources report unchanged unconditionally.
	DetectStructuralChanges(ctx context.Context) (*model.ChangeDetectionResult, error)
}
