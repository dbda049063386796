package model

import "time"

// SourceKind distinguishes the two adapter variants.
type SourceKind string

const (
	KindAPI     SourceKind = "api"
	KindScraper SourceKind = "scraper"
)

// PaginationKind selects how a scraper source advances between listing pages.
type PaginationKind string

const (
	// PaginationQueryParam appends/increments a numeric query parameter.
	PaginationQueryParam PaginationKind = "query_param"
	// PaginationURLPattern substitutes the page number into a URL template
	// containing a "{page}" placeholder.
	PaginationURLPattern PaginationKind = "url_pattern"
)

// RetryPolicy controls exponential backoff for transient request failures.
// Delay for attempt n (0-based) is InitialDelay * BackoffFactor^n.
type RetryPolicy struct {
	MaxRetries    int           `json:"maxRetries"`
	InitialDelay  time.Duration `json:"initialDelay"`
	BackoffFactor float64       `json:"backoffFactor"`
}

// APISettings holds API-source specifics: OAuth client-credentials and
// endpoints.
type APISettings struct {
	BaseURL      string        `json:"baseUrl"`
	TokenURL     string        `json:"tokenUrl"`
	ClientID     string        `json:"clientId"`
	ClientSecret string        `json:"clientSecret"`
	PageSize     int           `json:"pageSize"`
	MaxPages     int           `json:"maxPages"`
	RequestDelay time.Duration `json:"requestDelay"`
}

// ScraperSettings holds scraper-source specifics: target URL, CSS selectors
// and pagination strategy.
type ScraperSettings struct {
	ListingURL         string            `json:"listingUrl"`
	ListingSelector    string            `json:"listingSelector"`
	DetailLinkSelector string            `json:"detailLinkSelector"`
	FieldSelectors     map[string]string `json:"fieldSelectors"`
	Pagination         PaginationKind    `json:"pagination"`
	PageParam          string            `json:"pageParam,omitempty"`
	URLPattern         string            `json:"urlPattern,omitempty"`
	MaxPages           int               `json:"maxPages"`
	RequestDelay       time.Duration     `json:"requestDelay"`
}

// SourceConfig is the static description of one external source. Created at
// startup; mutable only through the orchestrator's update operation, which
// also reschedules.
type SourceConfig struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Kind             SourceKind  `json:"kind"`
	Enabled          bool        `json:"enabled"`
	Priority         int         `json:"priority"`
	Schedule         string      `json:"schedule"` // frequency label or cron expression
	ConcurrencyLimit int         `json:"concurrencyLimit"`
	RequestsPerMin   int         `json:"requestsPerMinute"`
	Retry            RetryPolicy `json:"retry"`

	API     *APISettings     `json:"api,omitempty"`
	Scraper *ScraperSettings `json:"scraper,omitempty"`
}
