package model

import "time"

// Severity classifies a validation issue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ValidationIssue describes one problem found in a job record. Issues are
// data attached to the record, never used for control flow.
type ValidationIssue struct {
	Field    string   `json:"field"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Code     string   `json:"code"`
}

// RunStatus is the terminal status of one collection run.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailure RunStatus = "failure"
)

// ErrorSeverity classifies an ErrorDetails entry.
type ErrorSeverity string

const (
	ErrInfo     ErrorSeverity = "info"
	ErrWarning  ErrorSeverity = "warning"
	ErrError    ErrorSeverity = "error"
	ErrCritical ErrorSeverity = "critical"
)

// ErrorDetails records one failure encountered during a collection run.
type ErrorDetails struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  ErrorSeverity  `json:"severity"`
	Context   map[string]any `json:"context,omitempty"`
}

// CollectionResult is the record of one orchestration run for one source.
// It is created when the run starts, appended to throughout, and written to
// the append-only result log when the run settles. Never mutated afterward.
type CollectionResult struct {
	RunID              string         `json:"runId"`
	SourceID           string         `json:"sourceId"`
	Timestamp          time.Time      `json:"timestamp"`
	Status             RunStatus      `json:"status"`
	JobsCollected      int            `json:"jobsCollected"`
	JobsProcessed      int            `json:"jobsProcessed"`
	JobsStored         int            `json:"jobsStored"`
	ValidationFailures int            `json:"validationFailures"`
	DurationMs         int64          `json:"durationMs"`
	Errors             []ErrorDetails `json:"errors,omitempty"`
	Jobs               []CanonicalJob `json:"jobs,omitempty"`
}

// AddError appends an ErrorDetails entry stamped with the current time.
func (r *CollectionResult) AddError(code, message string, sev ErrorSeverity, ctx map[string]any) {
	r.Errors = append(r.Errors, ErrorDetails{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Severity:  sev,
		Context:   ctx,
	})
}
