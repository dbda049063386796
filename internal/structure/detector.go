package structure

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"studentjobs/collector-service/internal/model"
	"studentjobs/collector-service/internal/store"
)

// Detector compares a page's current structural fingerprint against the last
// stored one and classifies any drift by how badly it would break scraping.
type Detector struct {
	fingerprints store.FingerprintStore
	notifier     store.NotificationSink
	log          *zap.SugaredLogger
}

// NewDetector constructs a Detector.
func NewDetector(fingerprints store.FingerprintStore, notifier store.NotificationSink, log *zap.SugaredLogger) *Detector {
	return &Detector{
		fingerprints: fingerprints,
		notifier:     notifier,
		log:          log.Named("structure"),
	}
}

// Check fingerprints page for source+role and compares against the stored
// fingerprint. selectors maps a selector name (for reporting) to the CSS
// selector the scraper relies on. On any detected change the new fingerprint
// and page snapshot are persisted for forensic diffing; high-impact changes
// are pushed to the notification sink.
func (d *Detector) Check(
	ctx context.Context,
	sourceID, role string,
	page []byte,
	selectors map[string]string,
) (*model.ChangeDetectionResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, errors.Wrap(err, "parse page")
	}

	counts := make(map[string]int, len(selectors))
	for name, sel := range selectors {
		counts[name] = doc.Find(sel).Length()
	}

	current := model.StructuralFingerprint{
		SourceID:       sourceID,
		Role:           role,
		Hash:           Fingerprint(doc.Get(0)),
		ComputedAt:     time.Now().UTC(),
		SelectorCounts: counts,
	}

	result := &model.ChangeDetectionResult{
		SourceID:              sourceID,
		Role:                  role,
		Status:                model.ChangeUnchanged,
		CanAdaptAutomatically: true,
		CheckedAt:             current.ComputedAt,
	}

	previous, err := d.fingerprints.Get(ctx, sourceID, role)
	if err != nil {
		return nil, errors.Wrapf(err, "load fingerprint %s:%s", sourceID, role)
	}

	if previous == nil {
		// First run: store the baseline and report unchanged.
		if err := d.persist(ctx, current, page); err != nil {
			return nil, err
		}
		d.log.Infow("baseline fingerprint stored", "source", sourceID, "role", role)
		return result, nil
	}

	if previous.Hash == current.Hash {
		return result, nil
	}

	result.Changes = diffSelectors(previous.SelectorCounts, counts, selectors)
	result.Status = model.ChangeMinor
	for _, ch := range result.Changes {
		if ch.Impact == model.ImpactHigh {
			result.Status = model.ChangeMajor
			result.CanAdaptAutomatically = false
		}
	}
	if len(result.Changes) == 0 {
		// Hash moved but every selector still matches as before: layout
		// shifted somewhere the scraper does not depend on.
		result.Status = model.ChangeMinor
	}

	if err := d.persist(ctx, current, page); err != nil {
		return nil, err
	}

	if result.Status == model.ChangeMajor {
		var high []model.SelectorChange
		for _, ch := range result.Changes {
			if ch.Impact == model.ImpactHigh {
				high = append(high, ch)
			}
		}
		d.notifier.Notify(ctx, sourceID, high)
	}

	d.log.Warnw("structural change detected",
		"source", sourceID, "role", role,
		"status", result.Status, "changes", len(result.Changes))
	return result, nil
}

func (d *Detector) persist(ctx context.Context, fp model.StructuralFingerprint, page []byte) error {
	if err := d.fingerprints.Save(ctx, fp); err != nil {
		return errors.Wrap(err, "save fingerprint")
	}
	if err := d.fingerprints.SaveSnapshot(ctx, fp.SourceID, fp.Role, page); err != nil {
		return errors.Wrap(err, "save snapshot")
	}
	return nil
}

// diffSelectors classifies each selector discrepancy:
// matched before, absent now → high; newly matching → low; match count moved
// by more than 50% → medium.
func diffSelectors(before, after map[string]int, selectors map[string]string) []model.SelectorChange {
	var changes []model.SelectorChange
	for name, sel := range selectors {
		b, a := before[name], after[name]
		switch {
		case b > 0 && a == 0:
			changes = append(changes, model.SelectorChange{
				Selector:    sel,
				Description: fmt.Sprintf("%s no longer matches any element", name),
				Impact:      model.ImpactHigh,
				CountBefore: b,
				CountAfter:  a,
			})
		case b == 0 && a > 0:
			changes = append(changes, model.SelectorChange{
				Selector:    sel,
				Description: fmt.Sprintf("%s newly matches %d element(s)", name, a),
				Impact:      model.ImpactLow,
				CountBefore: b,
				CountAfter:  a,
			})
		case b > 0 && countShift(b, a) > 0.5:
			changes = append(changes, model.SelectorChange{
				Selector:    sel,
				Description: fmt.Sprintf("%s match count moved from %d to %d", name, b, a),
				Impact:      model.ImpactMedium,
				CountBefore: b,
				CountAfter:  a,
			})
		}
	}
	return changes
}

func countShift(before, after int) float64 {
	diff := float64(after - before)
	if diff < 0 {
		diff = -diff
	}
	return diff / float64(before)
}
