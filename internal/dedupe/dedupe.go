// Package dedupe partitions freshly collected job records into create and
// update sets against existing storage. Exact matching uses the
// (source, externalId) natural key; fuzzy matching a normalized
// title+company key, used only to surface cross-source duplicate candidates.
package dedupe

import (
	"strings"
	"unicode"

	"go.uber.org/zap"

	"studentjobs/collector-service/internal/model"
)

// Partition is the outcome of deduplicating one batch.
type Partition struct {
	Creates []model.CanonicalJob
	Updates []model.CanonicalJob
	// CrossSourceCandidates lists incoming records whose fuzzy key matched an
	// existing record from a different source. They are still created; merge
	// behaviour is undecided product-wise, so this stays informational.
	CrossSourceCandidates []CrossSourceCandidate
}

// CrossSourceCandidate pairs an incoming record with the existing record it
// fuzzily duplicates.
type CrossSourceCandidate struct {
	Incoming model.JobKey
	Existing model.JobKey
}

// Deduplicator partitions batches against existing storage.
type Deduplicator struct {
	log *zap.SugaredLogger
}

// New constructs a Deduplicator.
func New(log *zap.SugaredLogger) *Deduplicator {
	return &Deduplicator{log: log.Named("dedupe")}
}

// PartitionJobs routes each incoming record: exact key match with an existing
// record → update; fuzzy match from a different source → create, logged as a
// cross-source candidate; no match → create. Records already routed to create
// join the fuzzy index, so duplicates across sources within one batch are
// surfaced too. Pure apart from logging.
func (d *Deduplicator) PartitionJobs(incoming, existing []model.CanonicalJob) Partition {
	exact := make(map[model.JobKey]struct{}, len(existing))
	fuzzy := make(map[string][]model.JobKey, len(existing))
	for _, job := range existing {
		exact[job.Key()] = struct{}{}
		if fk := FuzzyKey(job.Title, job.Company.Name); fk != "" {
			fuzzy[fk] = append(fuzzy[fk], job.Key())
		}
	}

	var p Partition
	for _, job := range incoming {
		key := job.Key()
		if _, ok := exact[key]; ok {
			p.Updates = append(p.Updates, job)
			continue
		}

		fk := FuzzyKey(job.Title, job.Company.Name)
		if fk != "" {
			for _, other := range fuzzy[fk] {
				if other.Source != key.Source {
					p.CrossSourceCandidates = append(p.CrossSourceCandidates, CrossSourceCandidate{
						Incoming: key,
						Existing: other,
					})
					d.log.Infow("cross-source duplicate candidate",
						"source", key.Source, "externalId", key.ExternalID,
						"matchesSource", other.Source, "matchesExternalId", other.ExternalID)
					break
				}
			}
			fuzzy[fk] = append(fuzzy[fk], key)
		}

		p.Creates = append(p.Creates, job)
	}
	return p
}

// FuzzyKey lowercases title+company and strips whitespace and
// non-alphanumerics, yielding the key used for cross-source matching.
func FuzzyKey(title, company string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title + company) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
