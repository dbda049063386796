package model

import "time"

// StructuralFingerprint is a content-addressed hash of a scraped page's DOM
// shape, keyed by source+role. One fingerprint per logical page role per
// source; overwritten on each detected change, not versioned.
type StructuralFingerprint struct {
	SourceID   string    `json:"sourceId"`
	Role       string    `json:"role"` // e.g. "listing"
	Hash       string    `json:"hash"`
	ComputedAt time.Time `json:"computedAt"`

	// Selector match counts at fingerprint time, used to diff structural
	// expectations when the hash changes.
	SelectorCounts map[string]int `json:"selectorCounts,omitempty"`
}

// ChangeStatus summarises a change-detection pass.
type ChangeStatus string

const (
	ChangeUnchanged ChangeStatus = "unchanged"
	ChangeMinor     ChangeStatus = "minor_changes"
	ChangeMajor     ChangeStatus = "major_changes"
)

// ChangeImpact classifies one selector discrepancy.
type ChangeImpact string

const (
	ImpactLow    ChangeImpact = "low"    // selector newly present: improvement
	ImpactMedium ChangeImpact = "medium" // match count moved by >50%
	ImpactHigh   ChangeImpact = "high"   // selector disappeared: hard failure risk
)

// SelectorChange describes one structural discrepancy between the stored and
// the freshly computed fingerprint.
type SelectorChange struct {
	Selector    string       `json:"selector"`
	Description string       `json:"description"`
	Impact      ChangeImpact `json:"impact"`
	CountBefore int          `json:"countBefore"`
	CountAfter  int          `json:"countAfter"`
}

// ChangeDetectionResult is the outcome of one change-detection pass.
type ChangeDetectionResult struct {
	SourceID              string           `json:"sourceId"`
	Role                  string           `json:"role"`
	Status                ChangeStatus     `json:"status"`
	CanAdaptAutomatically bool             `json:"canAdaptAutomatically"`
	Changes               []SelectorChange `json:"changes,omitempty"`
	CheckedAt             time.Time        `json:"checkedAt"`
}
