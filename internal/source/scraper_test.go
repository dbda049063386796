package source_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studentjobs/collector-service/internal/model"
	"studentjobs/collector-service/internal/source"
	"studentjobs/collector-service/internal/structure"
)

// memFingerprints is an in-memory FingerprintStore.
type memFingerprints struct {
	mu  sync.Mutex
	fps map[string]model.StructuralFingerprint
}

func newMemFingerprints() *memFingerprints {
	return &memFingerprints{fps: map[string]model.StructuralFingerprint{}}
}

func (m *memFingerprints) Get(_ context.Context, sourceID, role string) (*model.StructuralFingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.fps[sourceID+":"+role]
	if !ok {
		return nil, nil
	}
	return &fp, nil
}

func (m *memFingerprints) Save(_ context.Context, fp model.StructuralFingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fps[fp.SourceID+":"+fp.Role] = fp
	return nil
}

func (m *memFingerprints) SaveSnapshot(context.Context, string, string, []byte) error { return nil }

type nopNotifier struct{ notified atomic.Int32 }

func (n *nopNotifier) Notify(context.Context, string, []model.SelectorChange) {
	n.notified.Add(1)
}

// fakeBoard serves a two-page job board with detail pages.
type fakeBoard struct {
	srv         *httptest.Server
	detailCalls atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	brokenJob   string // detail id that returns 500
}

func newFakeBoard() *fakeBoard {
	f := &fakeBoard{}
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "", "1":
			fmt.Fprint(w, `<html><body><ul class="jobs">
				<li class="job"><a class="job-link" href="/jobs/a1">A1</a></li>
				<li class="job"><a class="job-link" href="/jobs/a2">A2</a></li>
			</ul></body></html>`)
		case "2":
			fmt.Fprint(w, `<html><body><ul class="jobs">
				<li class="job"><a class="job-link" href="/jobs/b1">B1</a></li>
			</ul></body></html>`)
		default:
			fmt.Fprint(w, `<html><body><ul class="jobs"></ul></body></html>`)
		}
	})
	mux.HandleFunc("/jobs/", func(w http.ResponseWriter, r *http.Request) {
		f.detailCalls.Add(1)
		cur := f.inFlight.Add(1)
		defer f.inFlight.Add(-1)
		for {
			max := f.maxInFlight.Load()
			if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)

		id := r.URL.Path[len("/jobs/"):]
		if id == f.brokenJob {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `<html><body>
			<h1 class="title">Student Job %s</h1>
			<div class="company">Acme AB</div>
			<div class="desc">Flexible part-time work alongside your studies in Stockholm.</div>
			<span class="city">Stockholm</span>
		</body></html>`, id)
	})
	f.srv = httptest.NewServer(mux)
	return f
}

func (f *fakeBoard) config() model.SourceConfig {
	return model.SourceConfig{
		ID:               "campusjobb",
		Kind:             model.KindScraper,
		Enabled:          true,
		ConcurrencyLimit: 2,
		Scraper: &model.ScraperSettings{
			ListingURL:         f.srv.URL + "/jobs",
			ListingSelector:    "li.job",
			DetailLinkSelector: "a.job-link",
			Pagination:         model.PaginationQueryParam,
			PageParam:          "page",
			MaxPages:           5,
			FieldSelectors: map[string]string{
				"title":       "h1.title",
				"company":     "div.company",
				"description": "div.desc",
				"location":    "span.city",
			},
		},
	}
}

func newScraper(cfg model.SourceConfig) (*source.ScraperAdapter, *nopNotifier) {
	log := zap.NewNop().Sugar()
	client := source.NewClient(5*time.Second, 0, model.RetryPolicy{InitialDelay: time.Millisecond, BackoffFactor: 2}, log)
	notifier := &nopNotifier{}
	detector := structure.NewDetector(newMemFingerprints(), notifier, log)
	return source.NewScraperAdapter(cfg, client, detector, log), notifier
}

func TestScraperAdapter_InitializeValidatesConfig(t *testing.T) {
	board := newFakeBoard()
	defer board.srv.Close()

	cfg := board.config()
	cfg.Scraper.DetailLinkSelector = ""
	adapter, _ := newScraper(cfg)
	assert.Error(t, adapter.Initialize(context.Background()))

	ok, _ := newScraper(board.config())
	assert.NoError(t, ok.Initialize(context.Background()))
}

func TestScraperAdapter_CollectWalksPagesAndScrapesDetails(t *testing.T) {
	board := newFakeBoard()
	defer board.srv.Close()

	adapter, _ := newScraper(board.config())
	out, err := adapter.Collect(context.Background())

	require.NoError(t, err)
	require.Len(t, out.Jobs, 3)
	assert.Empty(t, out.Errors)

	byID := map[string]model.CanonicalJob{}
	for _, j := range out.Jobs {
		byID[j.ExternalID] = j
	}
	job, ok := byID["a1"]
	require.True(t, ok)
	assert.Equal(t, "Student Job a1", job.Title)
	assert.Equal(t, "Acme AB", job.Company.Name)
	assert.Equal(t, "campusjobb", job.Source)
	require.NotNil(t, job.Location)
	assert.Equal(t, "Stockholm", job.Location.City)
	assert.False(t, job.PublicationDate.IsZero())
}

func TestScraperAdapter_DetailFailureIsContained(t *testing.T) {
	board := newFakeBoard()
	board.brokenJob = "a2"
	defer board.srv.Close()

	cfg := board.config()
	adapter, _ := newScraper(cfg)
	out, err := adapter.Collect(context.Background())

	require.NoError(t, err, "a broken detail page must not abort the batch")
	assert.Len(t, out.Jobs, 2)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "detail_scrape_failed", out.Errors[0].Code)
}

func TestScraperAdapter_ConcurrencyIsBounded(t *testing.T) {
	board := newFakeBoard()
	defer board.srv.Close()

	cfg := board.config()
	cfg.ConcurrencyLimit = 1
	adapter, _ := newScraper(cfg)

	_, err := adapter.Collect(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, board.maxInFlight.Load(), int32(1))
}

func TestScraperAdapter_UpdateConfigAppliesToNextRun(t *testing.T) {
	board := newFakeBoard()
	defer board.srv.Close()

	cfg := board.config()
	cfg.Scraper.FieldSelectors["title"] = "h1.headline" // does not match the board markup
	adapter, _ := newScraper(cfg)

	out, err := adapter.Collect(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, out.Jobs)
	assert.Empty(t, out.Jobs[0].Title)

	adapter.UpdateConfig(board.config())

	out, err = adapter.Collect(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, out.Jobs)
	for _, j := range out.Jobs {
		assert.Equal(t, "Student Job "+j.ExternalID, j.Title)
	}
}

func TestScraperAdapter_URLPatternPagination(t *testing.T) {
	var pagesSeen []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pagesSeen = append(pagesSeen, r.URL.Path)
		mu.Unlock()
		fmt.Fprint(w, `<html><body></body></html>`) // no links: stop after page 1
	}))
	defer srv.Close()

	cfg := model.SourceConfig{
		ID:   "patterned",
		Kind: model.KindScraper,
		Scraper: &model.ScraperSettings{
			ListingURL:         srv.URL + "/list/1",
			DetailLinkSelector: "a.job",
			Pagination:         model.PaginationURLPattern,
			URLPattern:         srv.URL + "/list/{page}",
			MaxPages:           3,
		},
	}
	adapter, _ := newScraper(cfg)
	out, err := adapter.Collect(context.Background())

	require.NoError(t, err)
	assert.Empty(t, out.Jobs)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/list/1"}, pagesSeen)
}

func TestScraperAdapter_DetectStructuralChanges_FirstRunStoresBaseline(t *testing.T) {
	board := newFakeBoard()
	defer board.srv.Close()

	adapter, notifier := newScraper(board.config())
	result, err := adapter.DetectStructuralChanges(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.ChangeUnchanged, result.Status)
	assert.True(t, result.CanAdaptAutomatically)
	assert.Equal(t, int32(0), notifier.notified.Load())
}
