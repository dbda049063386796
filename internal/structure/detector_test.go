package structure_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studentjobs/collector-service/internal/model"
	"studentjobs/collector-service/internal/structure"
)

type memFingerprints struct {
	mu        sync.Mutex
	fps       map[string]model.StructuralFingerprint
	saves     int
	snapshots int
}

func newMemFingerprints() *memFingerprints {
	return &memFingerprints{fps: map[string]model.StructuralFingerprint{}}
}

func (m *memFingerprints) Get(_ context.Context, sourceID, role string) (*model.StructuralFingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.fps[sourceID+":"+role]
	if !ok {
		return nil, nil
	}
	return &fp, nil
}

func (m *memFingerprints) Save(_ context.Context, fp model.StructuralFingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fps[fp.SourceID+":"+fp.Role] = fp
	m.saves++
	return nil
}

func (m *memFingerprints) SaveSnapshot(context.Context, string, string, []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots++
	return nil
}

type capturingNotifier struct {
	mu      sync.Mutex
	changes [][]model.SelectorChange
}

func (c *capturingNotifier) Notify(_ context.Context, _ string, changes []model.SelectorChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, changes)
}

func newDetector() (*structure.Detector, *memFingerprints, *capturingNotifier) {
	fps := newMemFingerprints()
	notifier := &capturingNotifier{}
	return structure.NewDetector(fps, notifier, zap.NewNop().Sugar()), fps, notifier
}

var boardSelectors = map[string]string{
	"listing":     "li.job",
	"detail_link": "a.job-link",
}

const boardPage = `<html><body><ul class="jobs">
	<li class="job"><a class="job-link" href="/jobs/1">One</a></li>
	<li class="job"><a class="job-link" href="/jobs/2">Two</a></li>
</ul></body></html>`

func TestDetector_FirstRunStoresBaseline(t *testing.T) {
	detector, fps, notifier := newDetector()

	result, err := detector.Check(context.Background(), "board", "listing", []byte(boardPage), boardSelectors)

	require.NoError(t, err)
	assert.Equal(t, model.ChangeUnchanged, result.Status)
	assert.True(t, result.CanAdaptAutomatically)
	assert.Equal(t, 1, fps.saves)
	assert.Equal(t, 1, fps.snapshots)
	assert.Empty(t, notifier.changes)

	stored, err := fps.Get(context.Background(), "board", "listing")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.SelectorCounts["detail_link"])
}

func TestDetector_UnchangedPageIsNotRepersisted(t *testing.T) {
	detector, fps, _ := newDetector()
	ctx := context.Background()

	_, err := detector.Check(ctx, "board", "listing", []byte(boardPage), boardSelectors)
	require.NoError(t, err)

	result, err := detector.Check(ctx, "board", "listing", []byte(boardPage), boardSelectors)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeUnchanged, result.Status)
	assert.Empty(t, result.Changes)
	assert.Equal(t, 1, fps.saves, "an unchanged page must not rewrite the fingerprint")
}

func TestDetector_DroppedDetailLinkIsMajor(t *testing.T) {
	detector, fps, notifier := newDetector()
	ctx := context.Background()

	_, err := detector.Check(ctx, "board", "listing", []byte(boardPage), boardSelectors)
	require.NoError(t, err)

	// The board shipped a redesign: listings survive but the detail links
	// moved to a markup the configured selector no longer matches.
	redesigned := `<html><body><ul class="jobs">
		<li class="job"><button data-href="/jobs/1">One</button></li>
		<li class="job"><button data-href="/jobs/2">Two</button></li>
	</ul></body></html>`

	result, err := detector.Check(ctx, "board", "listing", []byte(redesigned), boardSelectors)
	require.NoError(t, err)

	assert.Equal(t, model.ChangeMajor, result.Status)
	assert.False(t, result.CanAdaptAutomatically)

	var dropped *model.SelectorChange
	for i, ch := range result.Changes {
		if ch.Selector == "a.job-link" {
			dropped = &result.Changes[i]
		}
	}
	require.NotNil(t, dropped)
	assert.Equal(t, model.ImpactHigh, dropped.Impact)
	assert.Equal(t, 2, dropped.CountBefore)
	assert.Equal(t, 0, dropped.CountAfter)

	require.Len(t, notifier.changes, 1, "a major change must notify")
	assert.Equal(t, model.ImpactHigh, notifier.changes[0][0].Impact)

	assert.Equal(t, 2, fps.saves, "the new fingerprint becomes the baseline")
	assert.Equal(t, 2, fps.snapshots)
}

func TestDetector_NewlyMatchingSelectorIsMinor(t *testing.T) {
	detector, _, notifier := newDetector()
	ctx := context.Background()

	selectors := map[string]string{
		"listing":     "li.job",
		"detail_link": "a.job-link",
		"field:badge": "span.badge",
	}

	_, err := detector.Check(ctx, "board", "listing", []byte(boardPage), selectors)
	require.NoError(t, err)

	withBadges := `<html><body><ul class="jobs">
		<li class="job"><a class="job-link" href="/jobs/1">One</a><span class="badge">New</span></li>
		<li class="job"><a class="job-link" href="/jobs/2">Two</a></li>
	</ul></body></html>`

	result, err := detector.Check(ctx, "board", "listing", []byte(withBadges), selectors)
	require.NoError(t, err)

	assert.Equal(t, model.ChangeMinor, result.Status)
	assert.True(t, result.CanAdaptAutomatically)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, model.ImpactLow, result.Changes[0].Impact)
	assert.Empty(t, notifier.changes, "minor changes do not notify")
}

func TestDetector_LargeCountShiftIsMediumImpact(t *testing.T) {
	detector, _, _ := newDetector()
	ctx := context.Background()

	_, err := detector.Check(ctx, "board", "listing", []byte(boardPage), boardSelectors)
	require.NoError(t, err)

	// Same selectors still match, but the listing ballooned from 2 jobs to 6.
	grown := `<html><body><ul class="jobs">
		<li class="job"><a class="job-link" href="/jobs/1">1</a></li>
		<li class="job"><a class="job-link" href="/jobs/2">2</a></li>
		<li class="job"><a class="job-link" href="/jobs/3">3</a></li>
		<li class="job"><a class="job-link" href="/jobs/4">4</a></li>
		<li class="job"><a class="job-link" href="/jobs/5">5</a></li>
		<li class="job"><a class="job-link" href="/jobs/6">6</a></li>
	</ul></body></html>`

	result, err := detector.Check(ctx, "board", "listing", []byte(grown), boardSelectors)
	require.NoError(t, err)

	assert.Equal(t, model.ChangeMinor, result.Status)
	require.Len(t, result.Changes, 2)
	for _, ch := range result.Changes {
		assert.Equal(t, model.ImpactMedium, ch.Impact)
	}
}
