// Package model defines shared data structures for the collector service.
package model

import "time"

// CanonicalJob is the unified offer representation produced by every source
// adapter. It is converted to JSON and stored in jobs.raw_data (JSONB);
// (Source, ExternalID) is the natural key used for upsert and exact dedup.
type CanonicalJob struct {
	ExternalID           string              `json:"externalId"`
	Source               string              `json:"source"`
	Title                string              `json:"title"`
	Description          string              `json:"description"`
	DescriptionFormatted string              `json:"descriptionFormatted,omitempty"`
	Requirements         string              `json:"requirements,omitempty"`
	SourceURL            string              `json:"sourceUrl"`
	Company              Company             `json:"company"`
	Location             *Location           `json:"location,omitempty"`
	ApplicationDetails   *ApplicationDetails `json:"applicationDetails,omitempty"`

	EmploymentType   string    `json:"employmentType,omitempty"`
	WorkingHoursType string    `json:"workingHoursType,omitempty"`
	Duration         string    `json:"duration,omitempty"`
	Salary           string    `json:"salary,omitempty"`
	Occupation       *CodeName `json:"occupation,omitempty"`
	OccupationGroup  *CodeName `json:"occupationGroup,omitempty"`
	OccupationField  *CodeName `json:"occupationField,omitempty"`

	Skills                []SkillRef    `json:"skills,omitempty"`
	EducationRequirements []SkillRef    `json:"educationRequirements,omitempty"`
	Languages             []LanguageRef `json:"languages,omitempty"`

	PublicationDate     time.Time  `json:"publicationDate"`
	LastPublicationDate *time.Time `json:"lastPublicationDate,omitempty"`
	ExpirationDate      *time.Time `json:"expirationDate,omitempty"`

	// QualityScore and Metadata["studentRelevanceScore"] are recomputed by
	// the pipeline on every run, never trusted from the source.
	QualityScore int            `json:"qualityScore"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	CollectingMetadata CollectingMetadata `json:"collectingMetadata"`
}

// Company holds employer details. Name is the only required field.
type Company struct {
	Name      string `json:"name"`
	OrgNumber string `json:"orgNumber,omitempty"`
	Website   string `json:"website,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Location describes where the job is performed. All fields optional.
type Location struct {
	City         string   `json:"city,omitempty"`
	Municipality string   `json:"municipality,omitempty"`
	Region       string   `json:"region,omitempty"`
	Country      string   `json:"country,omitempty"`
	Address      string   `json:"address,omitempty"`
	PostalCode   string   `json:"postalCode,omitempty"`
	Coordinates  *GeoPair `json:"coordinates,omitempty"`
}

// GeoPair is a latitude/longitude coordinate pair.
type GeoPair struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ApplicationDetails describes how to apply.
type ApplicationDetails struct {
	Email        string     `json:"email,omitempty"`
	URL          string     `json:"url,omitempty"`
	Reference    string     `json:"reference,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

// CodeName is an id+name pair from a source taxonomy (occupation codes etc).
type CodeName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SkillRef is a named skill or education requirement.
type SkillRef struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// LanguageRef is a language requirement with an optional proficiency level.
type LanguageRef struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Proficiency string `json:"proficiency,omitempty"`
}

// CollectingMetadata records how and when a job record was collected.
type CollectingMetadata struct {
	CollectedAt      time.Time         `json:"collectedAt"`
	ProcessingTimeMs int64             `json:"processingTimeMs"`
	AdapterVersion   string            `json:"adapterVersion"`
	ValidationIssues []ValidationIssue `json:"validationIssues,omitempty"`
}

// Key returns the composite natural key used for upsert and exact dedup.
func (j *CanonicalJob) Key() JobKey {
	return JobKey{Source: j.Source, ExternalID: j.ExternalID}
}

// JobKey is the (source, externalId) composite identity of a job.
type JobKey struct {
	Source     string
	ExternalID string
}

// StudentRelevanceScore reads the recomputed sub-score out of Metadata,
// returning 0 when absent.
func (j *CanonicalJob) StudentRelevanceScore() int {
	if j.Metadata == nil {
		return 0
	}
	switch v := j.Metadata["studentRelevanceScore"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
