package source

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"studentjobs/collector-service/internal/model"
	"studentjobs/collector-service/internal/structure"
)

const (
	scraperAdapterVersion     = "scraper/1.1.0"
	defaultScraperConcurrency = 3
)

// ScraperAdapter collects from an HTML job board: it walks listing pages,
// extracts detail-page links via a configured selector and scrapes each
// detail page with bounded concurrency. Individual page failures are
// contained; partial success is normal.
type ScraperAdapter struct {
	id       string
	client   *Client
	detector *structure.Detector
	log      *zap.SugaredLogger

	mu  sync.Mutex
	cfg model.SourceConfig
}

// NewScraperAdapter constructs a scraper adapter for cfg. cfg.Scraper must
// be set.
func NewScraperAdapter(cfg model.SourceConfig, client *Client, detector *structure.Detector, log *zap.SugaredLogger) *ScraperAdapter {
	return &ScraperAdapter{
		id:       cfg.ID,
		cfg:      cfg,
		client:   client,
		detector: detector,
		log:      log.Named("scraper." + cfg.ID),
	}
}

func (s *ScraperAdapter) SourceID() string { return s.id }

// Config returns the current source configuration.
func (s *ScraperAdapter) Config() model.SourceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// UpdateConfig swaps in new settings (selectors, pagination, limits). Rate
// and retry changes reach the shared client immediately; an in-progress run
// finishes on its snapshot.
func (s *ScraperAdapter) UpdateConfig(cfg model.SourceConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.client.SetRequestsPerMin(cfg.RequestsPerMin)
	s.client.SetRetryPolicy(cfg.Retry)
}

// Initialize validates the scraper configuration. Scrapers hold no session
// state, so there is nothing else to prepare.
func (s *ScraperAdapter) Initialize(_ context.Context) error {
	sc := s.Config().Scraper
	if sc == nil {
		return errors.Newf("source %s: scraper settings missing", s.id)
	}
	if sc.ListingURL == "" || sc.DetailLinkSelector == "" {
		return errors.Newf("source %s: listing URL and detail link selector are required", s.id)
	}
	if sc.Pagination == model.PaginationURLPattern && !strings.Contains(sc.URLPattern, "{page}") {
		return errors.Newf("source %s: url pattern must contain {page}", s.id)
	}
	return nil
}

// TestConnection fetches the listing page.
func (s *ScraperAdapter) TestConnection(ctx context.Context) bool {
	_, err := s.client.Get(ctx, s.Config().Scraper.ListingURL, nil)
	return err == nil
}

// Collect walks listing pages up to the configured max, gathers detail URLs
// and scrapes each with bounded concurrency.
func (s *ScraperAdapter) Collect(ctx context.Context) (Output, error) {
	var out Output

	// The run works from one config snapshot; a concurrent UpdateConfig
	// applies from the next run.
	cfg := s.Config()

	urls, listErrors := s.collectDetailURLs(ctx, cfg)
	out.Errors = append(out.Errors, listErrors...)
	if len(urls) == 0 {
		s.log.Infow("no detail links found")
		return out, nil
	}

	jobs, detailErrors := s.scrapeDetails(ctx, cfg, urls)
	out.Jobs = append(out.Jobs, jobs...)
	out.Errors = append(out.Errors, detailErrors...)

	s.log.Infow("collection fetch complete",
		"detailUrls", len(urls), "jobs", len(out.Jobs), "errors", len(out.Errors))
	return out, nil
}

// DetectStructuralChanges fetches the listing page and hands it to the
// structural detector along with every selector the scraper depends on.
func (s *ScraperAdapter) DetectStructuralChanges(ctx context.Context) (*model.ChangeDetectionResult, error) {
	sc := s.Config().Scraper
	page, err := s.client.Get(ctx, sc.ListingURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "source %s: fetch listing page", s.id)
	}

	selectors := map[string]string{
		"listing":     sc.ListingSelector,
		"detail_link": sc.DetailLinkSelector,
	}
	for field, sel := range sc.FieldSelectors {
		selectors["field:"+field] = sel
	}

	return s.detector.Check(ctx, s.id, "listing", page, selectors)
}

// ── Listing walk ───────────────────────────────────────────────────────────

func (s *ScraperAdapter) collectDetailURLs(ctx context.Context, cfg model.SourceConfig) ([]string, []model.ErrorDetails) {
	var (
		urls []string
		errs []model.ErrorDetails
		seen = map[string]bool{}
	)

	maxPages := cfg.Scraper.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	for page := 1; page <= maxPages; page++ {
		pageURL, err := pageURL(cfg.Scraper, page)
		if err != nil {
			errs = append(errs, pageError("listing_url_invalid", err, page))
			break
		}

		body, err := s.client.Get(ctx, pageURL, nil)
		if err != nil {
			errs = append(errs, pageError("listing_fetch_failed", err, page))
			continue
		}

		links, err := extractLinks(cfg.Scraper, body)
		if err != nil {
			errs = append(errs, pageError("listing_parse_failed", err, page))
			continue
		}
		if len(links) == 0 {
			break // ran past the last page
		}

		added := 0
		for _, link := range links {
			if !seen[link] {
				seen[link] = true
				urls = append(urls, link)
				added++
			}
		}
		if added == 0 {
			break // pagination is repeating itself
		}

		if d := cfg.Scraper.RequestDelay; d > 0 && page < maxPages {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return urls, errs
			}
		}
	}
	return urls, errs
}

// pageURL builds the listing URL for a 1-based page number.
func pageURL(sc *model.ScraperSettings, page int) (string, error) {
	switch sc.Pagination {
	case model.PaginationURLPattern:
		return strings.ReplaceAll(sc.URLPattern, "{page}", strconv.Itoa(page)), nil
	case model.PaginationQueryParam:
		u, err := url.Parse(sc.ListingURL)
		if err != nil {
			return "", errors.Wrap(err, "parse listing URL")
		}
		q := u.Query()
		q.Set(sc.PageParam, strconv.Itoa(page))
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		if page > 1 {
			return "", errors.Newf("pagination kind %q cannot advance pages", sc.Pagination)
		}
		return sc.ListingURL, nil
	}
}

func extractLinks(sc *model.ScraperSettings, page []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, errors.Wrap(err, "parse listing page")
	}

	base, err := url.Parse(sc.ListingURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse listing URL")
	}

	var links []string
	doc.Find(sc.DetailLinkSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links, nil
}

// ── Detail scraping ────────────────────────────────────────────────────────

// scrapeDetails fetches every detail URL with at most ConcurrencyLimit
// requests in flight. The semaphore bounds concurrency properly even when
// individual requests are slow; the client's rate limiter spaces them.
func (s *ScraperAdapter) scrapeDetails(ctx context.Context, cfg model.SourceConfig, urls []string) ([]model.CanonicalJob, []model.ErrorDetails) {
	limit := cfg.ConcurrencyLimit
	if limit <= 0 {
		limit = defaultScraperConcurrency
	}
	sem := make(chan struct{}, limit)

	var (
		mu   sync.Mutex
		jobs []model.CanonicalJob
		errs []model.ErrorDetails
		wg   sync.WaitGroup
	)

	for _, detailURL := range urls {
		wg.Add(1)
		go func(detailURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			job, err := s.scrapeDetail(ctx, cfg.Scraper, detailURL)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, model.ErrorDetails{
					Code:      "detail_scrape_failed",
					Message:   err.Error(),
					Timestamp: time.Now().UTC(),
					Severity:  model.ErrError,
					Context:   map[string]any{"url": detailURL},
				})
				return
			}
			jobs = append(jobs, job)
		}(detailURL)
	}
	wg.Wait()

	return jobs, errs
}

func (s *ScraperAdapter) scrapeDetail(ctx context.Context, sc *model.ScraperSettings, detailURL string) (model.CanonicalJob, error) {
	started := time.Now()

	body, err := s.client.Get(ctx, detailURL, nil)
	if err != nil {
		return model.CanonicalJob{}, errors.Wrap(err, "fetch detail page")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.CanonicalJob{}, errors.Wrap(err, "parse detail page")
	}

	field := func(name string) string {
		sel, ok := sc.FieldSelectors[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(doc.Find(sel).First().Text())
	}

	job := model.CanonicalJob{
		ExternalID:       externalIDFromURL(detailURL),
		Source:           s.id,
		Title:            field("title"),
		Description:      field("description"),
		SourceURL:        detailURL,
		Company:          model.Company{Name: field("company")},
		Salary:           field("salary"),
		EmploymentType:   field("employmentType"),
		WorkingHoursType: field("workingHours"),
		CollectingMetadata: model.CollectingMetadata{
			CollectedAt:      time.Now().UTC(),
			ProcessingTimeMs: time.Since(started).Milliseconds(),
			AdapterVersion:   scraperAdapterVersion,
		},
	}

	if city := field("location"); city != "" {
		job.Location = &model.Location{City: city}
	}
	if raw := field("publicationDate"); raw != "" {
		if t, ok := parseAPIDate(raw); ok {
			job.PublicationDate = t
		}
	}
	if job.PublicationDate.IsZero() {
		// Boards that omit the posting date get the collection time; the
		// validator would otherwise reject every record from them.
		job.PublicationDate = job.CollectingMetadata.CollectedAt
	}
	if raw := field("deadline"); raw != "" {
		if t, ok := parseAPIDate(raw); ok {
			job.ApplicationDetails = &model.ApplicationDetails{Deadline: &t}
		}
	}

	return job, nil
}

// externalIDFromURL derives a stable id from the detail URL: the last path
// segment when it looks like an id, otherwise a digest of the full URL.
func externalIDFromURL(detailURL string) string {
	if u, err := url.Parse(detailURL); err == nil {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if last := parts[len(parts)-1]; last != "" && len(last) <= 64 {
			return last
		}
	}
	sum := sha1.Sum([]byte(detailURL))
	return hex.EncodeToString(sum[:])
}

func pageError(code string, err error, page int) model.ErrorDetails {
	return model.ErrorDetails{
		Code:      code,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		Severity:  model.ErrError,
		Context:   map[string]any{"page": page},
	}
}

var _ Adapter = (*ScraperAdapter)(nil)
