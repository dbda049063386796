// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"studentjobs/collector-service/internal/model"
)

// Config holds all runtime configuration for the collector service.
type Config struct {
	Port           string
	Env            string // "development" | "production", selects log format
	DatabaseURL    string
	RedisURL       string
	RedisKeyPrefix string

	RequestTimeout time.Duration

	// JobTech-style platsbanken API credentials.
	JobTechBaseURL      string
	JobTechTokenURL     string
	JobTechClientID     string
	JobTechClientSecret string

	// Optional scraped campus job board; the source stays disabled when the
	// URL is not set.
	CampusBoardURL string
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	port := os.Getenv("COLLECTOR_PORT")
	if port == "" {
		port = "8082"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	timeout := 15 * time.Second
	if s := os.Getenv("REQUEST_TIMEOUT_SECONDS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, errors.Newf("REQUEST_TIMEOUT_SECONDS must be a positive integer, got %q", s)
		}
		timeout = time.Duration(v) * time.Second
	}

	prefix := os.Getenv("REDIS_KEY_PREFIX")
	if prefix == "" {
		prefix = "collector:"
	}

	return &Config{
		Port:                port,
		Env:                 env,
		DatabaseURL:         dbURL,
		RedisURL:            redisURL,
		RedisKeyPrefix:      prefix,
		RequestTimeout:      timeout,
		JobTechBaseURL:      getenvDefault("JOBTECH_BASE_URL", "https://jobsearch.api.jobtechdev.se"),
		JobTechTokenURL:     os.Getenv("JOBTECH_TOKEN_URL"),
		JobTechClientID:     os.Getenv("JOBTECH_CLIENT_ID"),
		JobTechClientSecret: os.Getenv("JOBTECH_CLIENT_SECRET"),
		CampusBoardURL:      os.Getenv("CAMPUS_BOARD_URL"),
	}, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Sources builds the startup source table. Sources with missing credentials
// or URLs come back disabled so the rest of the pipeline still runs.
func (c *Config) Sources() []model.SourceConfig {
	defaultRetry := model.RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		BackoffFactor: 2,
	}

	return []model.SourceConfig{
		{
			ID:             "platsbanken",
			Name:           "Platsbanken job search API",
			Kind:           model.KindAPI,
			Enabled:        c.JobTechClientID != "" && c.JobTechClientSecret != "",
			Priority:       10,
			Schedule:       "every6h",
			RequestsPerMin: 120,
			Retry:          defaultRetry,
			API: &model.APISettings{
				BaseURL:      c.JobTechBaseURL,
				TokenURL:     c.JobTechTokenURL,
				ClientID:     c.JobTechClientID,
				ClientSecret: c.JobTechClientSecret,
				PageSize:     100,
				MaxPages:     20,
			},
		},
		{
			ID:               "campusjobb",
			Name:             "Campus job board",
			Kind:             model.KindScraper,
			Enabled:          c.CampusBoardURL != "",
			Priority:         5,
			Schedule:         "daily",
			ConcurrencyLimit: 3,
			RequestsPerMin:   30,
			Retry:            defaultRetry,
			Scraper: &model.ScraperSettings{
				ListingURL:         c.CampusBoardURL,
				ListingSelector:    "li.job-listing",
				DetailLinkSelector: "a.job-link",
				Pagination:         model.PaginationQueryParam,
				PageParam:          "page",
				MaxPages:           10,
				RequestDelay:       500 * time.Millisecond,
				FieldSelectors: map[string]string{
					"title":           "h1.job-title",
					"company":         "div.company-name",
					"description":     "div.job-description",
					"location":        "span.job-location",
					"employmentType":  "span.employment-type",
					"workingHours":    "span.working-hours",
					"publicationDate": "time.published",
					"deadline":        "time.deadline",
				},
			},
		},
	}
}
