package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"studentjobs/collector-service/internal/model"
)

const (
	apiAdapterVersion = "api/1.2.0"
	// tokenRefreshMargin: refresh when less than this much validity remains.
	tokenRefreshMargin = 60 * time.Second
	defaultPageSize    = 50
	defaultMaxPages    = 20
)

// APIAdapter collects from an OAuth2 client-credentials job API with
// offset/limit pagination.
type APIAdapter struct {
	id     string
	client *Client
	log    *zap.SugaredLogger

	mu          sync.Mutex
	cfg         model.SourceConfig
	token       string
	tokenExpiry time.Time
}

// NewAPIAdapter constructs an API adapter for cfg. cfg.API must be set.
func NewAPIAdapter(cfg model.SourceConfig, client *Client, log *zap.SugaredLogger) *APIAdapter {
	return &APIAdapter{
		id:     cfg.ID,
		cfg:    cfg,
		client: client,
		log:    log.Named("api." + cfg.ID),
	}
}

func (a *APIAdapter) SourceID() string { return a.id }

// Config returns the current source configuration.
func (a *APIAdapter) Config() model.SourceConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// UpdateConfig swaps in new settings. Changed credentials invalidate the
// cached token; rate and retry changes reach the shared client immediately.
func (a *APIAdapter) UpdateConfig(cfg model.SourceConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.API != nil && cfg.API != nil &&
		(a.cfg.API.ClientID != cfg.API.ClientID || a.cfg.API.ClientSecret != cfg.API.ClientSecret) {
		a.token = ""
	}
	a.cfg = cfg
	a.client.SetRequestsPerMin(cfg.RequestsPerMin)
	a.client.SetRetryPolicy(cfg.Retry)
}

// Initialize verifies credentials are configured and acquires the first
// token. Missing credentials are a configuration error, fatal for the source.
func (a *APIAdapter) Initialize(ctx context.Context) error {
	cfg := a.Config()
	if cfg.API == nil {
		return errors.Newf("source %s: api settings missing", a.id)
	}
	if cfg.API.ClientID == "" || cfg.API.ClientSecret == "" {
		return errors.Newf("source %s: client credentials missing", a.id)
	}
	_, err := a.accessToken(ctx)
	return err
}

// TestConnection probes the search endpoint with a single-result query.
func (a *APIAdapter) TestConnection(ctx context.Context) bool {
	token, err := a.accessToken(ctx)
	if err != nil {
		return false
	}
	params := url.Values{}
	params.Set("limit", "1")
	_, err = a.client.Get(ctx, a.Config().API.BaseURL+"?"+params.Encode(), bearer(token))
	return err == nil
}

// Collect pages through the search endpoint until the source reports no more
// results or the page cap is hit. Individual page failures after retries are
// recorded and the run continues; authentication failures abort the run.
func (a *APIAdapter) Collect(ctx context.Context) (Output, error) {
	var out Output

	// The run works from one config snapshot; a concurrent UpdateConfig
	// applies from the next run.
	api := *a.Config().API

	pageSize := api.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxPages := api.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	for page := 0; page < maxPages; page++ {
		batch, total, err := a.fetchPage(ctx, api.BaseURL, page*pageSize, pageSize)
		if err != nil {
			if IsAuthFailure(err) {
				return out, errors.Wrapf(err, "source %s: authentication failed", a.id)
			}
			out.Errors = append(out.Errors, model.ErrorDetails{
				Code:      "page_fetch_failed",
				Message:   err.Error(),
				Timestamp: time.Now().UTC(),
				Severity:  model.ErrError,
				Context:   map[string]any{"page": page},
			})
			continue
		}
		out.Jobs = append(out.Jobs, batch...)

		if len(batch) < pageSize || (page+1)*pageSize >= total {
			break
		}
		if d := api.RequestDelay; d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return out, ctx.Err()
			}
		}
	}

	a.log.Infow("collection fetch complete", "jobs", len(out.Jobs), "pageErrors", len(out.Errors))
	return out, nil
}

// DetectStructuralChanges is a no-op for API sources: a JSON contract has no
// DOM to fingerprint.
func (a *APIAdapter) DetectStructuralChanges(_ context.Context) (*model.ChangeDetectionResult, error) {
	return &model.ChangeDetectionResult{
		SourceID:              a.id,
		Status:                model.ChangeUnchanged,
		CanAdaptAutomatically: true,
		CheckedAt:             time.Now().UTC(),
	}, nil
}

// ── OAuth token handling ───────────────────────────────────────────────────

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns the cached token, refreshing it when less than
// tokenRefreshMargin of validity remains.
func (a *APIAdapter) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Until(a.tokenExpiry) > tokenRefreshMargin {
		return a.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.cfg.API.ClientID)
	form.Set("client_secret", a.cfg.API.ClientSecret)

	body, err := a.client.PostForm(ctx, a.cfg.API.TokenURL, form)
	if err != nil {
		return "", errors.Wrapf(err, "source %s: token request", a.id)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", errors.Wrap(err, "decode token response")
	}
	if tok.AccessToken == "" {
		return "", errors.Newf("source %s: empty access token", a.id)
	}

	a.token = tok.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	a.log.Debugw("access token refreshed", "expiresIn", tok.ExpiresIn)
	return a.token, nil
}

// ── Wire format ────────────────────────────────────────────────────────────

// apiResponse mirrors the search endpoint's top-level JSON.
type apiResponse struct {
	Total struct {
		Value int `json:"value"`
	} `json:"total"`
	Hits []apiHit `json:"hits"`
}

type apiHit struct {
	ID          string `json:"id"`
	Headline    string `json:"headline"`
	Description struct {
		Text          string `json:"text"`
		TextFormatted string `json:"text_formatted"`
		Requirements  string `json:"requirements"`
	} `json:"description"`
	Employer struct {
		Name    string `json:"name"`
		OrgNr   string `json:"organization_number"`
		Website string `json:"url"`
		Email   string `json:"email"`
		Phone   string `json:"phone_number"`
	} `json:"employer"`
	Workplace struct {
		City         string  `json:"city"`
		Municipality string  `json:"municipality_code"`
		Region       string  `json:"region"`
		Country      string  `json:"country"`
		Street       string  `json:"street_address"`
		PostCode     string  `json:"postcode"`
		Latitude     float64 `json:"latitude"`
		Longitude    float64 `json:"longitude"`
	} `json:"workplace_address"`
	Application struct {
		Email       string `json:"email"`
		URL         string `json:"url"`
		Reference   string `json:"reference"`
		Information string `json:"information"`
		Deadline    string `json:"deadline"`
	} `json:"application_details"`
	EmploymentType  codeName   `json:"employment_type"`
	WorkingHours    codeName   `json:"working_hours_type"`
	Duration        codeName   `json:"duration"`
	SalaryText      string     `json:"salary_description"`
	Occupation      codeName   `json:"occupation"`
	OccupationGroup codeName   `json:"occupation_group"`
	OccupationField codeName   `json:"occupation_field"`
	MustHave        skillLists `json:"must_have"`
	NiceToHave      skillLists `json:"nice_to_have"`
	WebpageURL      string     `json:"webpage_url"`
	PublicationDate string     `json:"publication_date"`
	LastPublication string     `json:"last_publication_date"`
	RemovalDate     string     `json:"removal_date"`
}

type codeName struct {
	ConceptID string `json:"concept_id"`
	Label     string `json:"label"`
}

type skillLists struct {
	Skills    []codeName `json:"skills"`
	Education []codeName `json:"education"`
	Languages []codeName `json:"languages"`
}

func (a *APIAdapter) fetchPage(ctx context.Context, baseURL string, offset, limit int) ([]model.CanonicalJob, int, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))

	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	body, err := a.client.Get(ctx, baseURL+"?"+params.Encode(), bearer(token))
	if err != nil {
		return nil, 0, errors.Wrapf(err, "offset %d", offset)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, errors.Wrap(err, "decode search response")
	}

	collectedAt := time.Now().UTC()
	jobs := make([]model.CanonicalJob, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		jobs = append(jobs, a.toCanonical(hit, collectedAt))
	}
	return jobs, resp.Total.Value, nil
}

func (a *APIAdapter) toCanonical(hit apiHit, collectedAt time.Time) model.CanonicalJob {
	job := model.CanonicalJob{
		ExternalID:           hit.ID,
		Source:               a.id,
		Title:                hit.Headline,
		Description:          hit.Description.Text,
		DescriptionFormatted: hit.Description.TextFormatted,
		Requirements:         hit.Description.Requirements,
		SourceURL:            hit.WebpageURL,
		Company: model.Company{
			Name:      hit.Employer.Name,
			OrgNumber: hit.Employer.OrgNr,
			Website:   hit.Employer.Website,
			Email:     hit.Employer.Email,
			Phone:     hit.Employer.Phone,
		},
		EmploymentType:   hit.EmploymentType.Label,
		WorkingHoursType: hit.WorkingHours.Label,
		Duration:         hit.Duration.Label,
		Salary:           hit.SalaryText,
		CollectingMetadata: model.CollectingMetadata{
			CollectedAt:    collectedAt,
			AdapterVersion: apiAdapterVersion,
		},
	}

	if w := hit.Workplace; w.City != "" || w.Municipality != "" || w.Region != "" || w.Street != "" {
		loc := model.Location{
			City:         w.City,
			Municipality: w.Municipality,
			Region:       w.Region,
			Country:      w.Country,
			Address:      w.Street,
			PostalCode:   w.PostCode,
		}
		if w.Latitude != 0 || w.Longitude != 0 {
			loc.Coordinates = &model.GeoPair{Latitude: w.Latitude, Longitude: w.Longitude}
		}
		job.Location = &loc
	}

	if ap := hit.Application; ap.Email != "" || ap.URL != "" || ap.Reference != "" || ap.Information != "" || ap.Deadline != "" {
		details := model.ApplicationDetails{
			Email:        ap.Email,
			URL:          ap.URL,
			Reference:    ap.Reference,
			Instructions: ap.Information,
		}
		if t, ok := parseAPIDate(ap.Deadline); ok {
			details.Deadline = &t
		}
		job.ApplicationDetails = &details
	}

	job.Occupation = toCodeName(hit.Occupation)
	job.OccupationGroup = toCodeName(hit.OccupationGroup)
	job.OccupationField = toCodeName(hit.OccupationField)

	for _, s := range hit.MustHave.Skills {
		job.Skills = append(job.Skills, model.SkillRef{Name: s.Label, Required: true})
	}
	for _, s := range hit.NiceToHave.Skills {
		job.Skills = append(job.Skills, model.SkillRef{Name: s.Label, Required: false})
	}
	for _, e := range hit.MustHave.Education {
		job.EducationRequirements = append(job.EducationRequirements, model.SkillRef{Name: e.Label, Required: true})
	}
	for _, e := range hit.NiceToHave.Education {
		job.EducationRequirements = append(job.EducationRequirements, model.SkillRef{Name: e.Label, Required: false})
	}
	for _, l := range hit.MustHave.Languages {
		job.Languages = append(job.Languages, model.LanguageRef{Name: l.Label, Required: true})
	}
	for _, l := range hit.NiceToHave.Languages {
		job.Languages = append(job.Languages, model.LanguageRef{Name: l.Label, Required: false})
	}

	if t, ok := parseAPIDate(hit.PublicationDate); ok {
		job.PublicationDate = t
	}
	if t, ok := parseAPIDate(hit.LastPublication); ok {
		job.LastPublicationDate = &t
	}
	if t, ok := parseAPIDate(hit.RemovalDate); ok {
		job.ExpirationDate = &t
	}

	return job
}

func toCodeName(cn codeName) *model.CodeName {
	if cn.ConceptID == "" && cn.Label == "" {
		return nil
	}
	return &model.CodeName{ID: cn.ConceptID, Name: cn.Label}
}

// parseAPIDate accepts the date layouts the API is known to emit.
func parseAPIDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	h.Set("Accept", "application/json")
	return h
}

var _ Adapter = (*APIAdapter)(nil)
