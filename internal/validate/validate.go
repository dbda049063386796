// Package validate checks canonical job records against required-field,
// format and business-rule constraints. Validation never mutates a record and
// never fails with an error: every finding is reported as a ValidationIssue.
package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
	"unicode/utf8"

	"studentjobs/collector-service/internal/model"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	titleMinLen = 3
	titleMaxLen = 100
	descMinLen  = 50
	descMaxLen  = 10000
)

// Result pairs a record's issues with the validity verdict.
// Valid is true iff no issue has error severity; warnings and infos do not
// make a record invalid.
type Result struct {
	Issues []model.ValidationIssue
	Valid  bool
}

// Validator checks canonical job records. The zero value is ready to use;
// now is injectable for tests and defaults to time.Now.
type Validator struct {
	now func() time.Time
}

// New constructs a Validator using the wall clock.
func New() *Validator {
	return &Validator{now: time.Now}
}

// NewAt constructs a Validator with a fixed clock, for tests.
func NewAt(now func() time.Time) *Validator {
	return &Validator{now: now}
}

// Validate runs all three passes over the record and accumulates issues.
// Passes never short-circuit: a record missing its title still gets its
// description and date findings reported.
func (v *Validator) Validate(job *model.CanonicalJob) Result {
	var issues []model.ValidationIssue
	issues = append(issues, requiredFields(job)...)
	issues = append(issues, formatChecks(job)...)
	issues = append(issues, v.businessRules(job)...)

	return Result{Issues: issues, Valid: !HasErrors(issues)}
}

// HasErrors reports whether any issue carries error severity.
func HasErrors(issues []model.ValidationIssue) bool {
	for _, iss := range issues {
		if iss.Severity == model.SeverityError {
			return true
		}
	}
	return false
}

// ── Pass 1: required fields ────────────────────────────────────────────────

func requiredFields(job *model.CanonicalJob) []model.ValidationIssue {
	var issues []model.ValidationIssue
	missing := func(field string) {
		issues = append(issues, model.ValidationIssue{
			Field:    field,
			Severity: model.SeverityError,
			Message:  field + " is required",
			Code:     "required_field_missing",
		})
	}

	if job.ExternalID == "" {
		missing("externalId")
	}
	if job.Title == "" {
		missing("title")
	}
	if job.Source == "" {
		missing("source")
	}
	if job.SourceURL == "" {
		missing("sourceUrl")
	}
	if job.Description == "" {
		missing("description")
	}
	if job.Company.Name == "" {
		missing("company.name")
	}
	if job.PublicationDate.IsZero() {
		missing("publicationDate")
	}
	return issues
}

// ── Pass 2: format checks ──────────────────────────────────────────────────

func formatChecks(job *model.CanonicalJob) []model.ValidationIssue {
	var issues []model.ValidationIssue

	issues = appendIfBadURL(issues, "sourceUrl", job.SourceURL, model.SeverityError)
	issues = appendIfBadURL(issues, "company.website", job.Company.Website, model.SeverityWarning)
	issues = appendIfBadEmail(issues, "company.email", job.Company.Email)

	if job.ApplicationDetails != nil {
		issues = appendIfBadURL(issues, "applicationDetails.url", job.ApplicationDetails.URL, model.SeverityWarning)
		issues = appendIfBadEmail(issues, "applicationDetails.email", job.ApplicationDetails.Email)
	}
	return issues
}

func appendIfBadURL(issues []model.ValidationIssue, field, raw string, sev model.Severity) []model.ValidationIssue {
	if raw == "" {
		return issues
	}
	u, err := url.Parse(raw)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return issues
	}
	return append(issues, model.ValidationIssue{
		Field:    field,
		Severity: sev,
		Message:  fmt.Sprintf("%s is not a valid http(s) URL: %q", field, raw),
		Code:     "invalid_url",
	})
}

func appendIfBadEmail(issues []model.ValidationIssue, field, raw string) []model.ValidationIssue {
	if raw == "" || emailRe.MatchString(raw) {
		return issues
	}
	return append(issues, model.ValidationIssue{
		Field:    field,
		Severity: model.SeverityWarning,
		Message:  fmt.Sprintf("%s is not a valid email address: %q", field, raw),
		Code:     "invalid_email",
	})
}

// ── Pass 3: business rules ─────────────────────────────────────────────────

func (v *Validator) businessRules(job *model.CanonicalJob) []model.ValidationIssue {
	var issues []model.ValidationIssue
	now := v.now()

	// Length bounds are in characters, not bytes: Swedish text would otherwise
	// over-count every å, ä and ö.
	if n := utf8.RuneCountInString(job.Title); n > 0 && (n < titleMinLen || n > titleMaxLen) {
		issues = append(issues, model.ValidationIssue{
			Field:    "title",
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("title length %d outside [%d,%d]", n, titleMinLen, titleMaxLen),
			Code:     "title_length",
		})
	}
	if n := utf8.RuneCountInString(job.Description); n > 0 && (n < descMinLen || n > descMaxLen) {
		issues = append(issues, model.ValidationIssue{
			Field:    "description",
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("description length %d outside [%d,%d]", n, descMinLen, descMaxLen),
			Code:     "description_length",
		})
	}
	if !job.PublicationDate.IsZero() && job.PublicationDate.After(now) {
		issues = append(issues, model.ValidationIssue{
			Field:    "publicationDate",
			Severity: model.SeverityWarning,
			Message:  "publicationDate is in the future",
			Code:     "future_publication",
		})
	}
	if job.ExpirationDate != nil && !job.PublicationDate.IsZero() &&
		job.ExpirationDate.Before(job.PublicationDate) {
		issues = append(issues, model.ValidationIssue{
			Field:    "expirationDate",
			Severity: model.SeverityError,
			Message:  "expirationDate precedes publicationDate",
			Code:     "expiration_before_publication",
		})
	}
	if job.ApplicationDetails != nil && job.ApplicationDetails.Deadline != nil {
		deadline := *job.ApplicationDetails.Deadline
		if !job.PublicationDate.IsZero() && deadline.Before(job.PublicationDate) {
			issues = append(issues, model.ValidationIssue{
				Field:    "applicationDetails.deadline",
				Severity: model.SeverityWarning,
				Message:  "application deadline precedes publicationDate",
				Code:     "deadline_before_publication",
			})
		}
		if deadline.Before(now) {
			issues = append(issues, model.ValidationIssue{
				Field:    "applicationDetails.deadline",
				Severity: model.SeverityInfo,
				Message:  "application deadline has already passed",
				Code:     "deadline_passed",
			})
		}
	}
	return issues
}
