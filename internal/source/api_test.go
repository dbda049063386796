package source_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studentjobs/collector-service/internal/model"
	"studentjobs/collector-service/internal/source"
)

// fakeAPI serves a token endpoint and a paginated search endpoint.
type fakeAPI struct {
	srv          *httptest.Server
	totalJobs    int
	tokenCalls   atomic.Int32
	searchCalls  atomic.Int32
	failSearches atomic.Bool
	expiresIn    int
}

func newFakeAPI(totalJobs int) *fakeAPI {
	f := &fakeAPI{totalJobs: totalJobs, expiresIn: 3600}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if r.FormValue("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + strconv.Itoa(int(f.tokenCalls.Load())),
			"expires_in":   f.expiresIn,
		})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.failSearches.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		hits := []map[string]any{}
		for i := offset; i < offset+limit && i < f.totalJobs; i++ {
			hits = append(hits, map[string]any{
				"id":               fmt.Sprintf("job-%d", i),
				"headline":         fmt.Sprintf("Student Developer %d", i),
				"webpage_url":      fmt.Sprintf("https://jobs.example.se/%d", i),
				"publication_date": "2026-02-01T08:00:00",
				"description":      map[string]any{"text": "A part-time role."},
				"employer":         map[string]any{"name": "Acme AB"},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"total": map[string]any{"value": f.totalJobs},
			"hits":  hits,
		})
	})
	f.srv = httptest.NewServer(mux)
	return f
}

func (f *fakeAPI) config(pageSize int) model.SourceConfig {
	return model.SourceConfig{
		ID:      "jobtech",
		Kind:    model.KindAPI,
		Enabled: true,
		API: &model.APISettings{
			BaseURL:      f.srv.URL + "/search",
			TokenURL:     f.srv.URL + "/token",
			ClientID:     "client",
			ClientSecret: "secret",
			PageSize:     pageSize,
			MaxPages:     10,
		},
	}
}

func newAPIAdapter(cfg model.SourceConfig) *source.APIAdapter {
	log := zap.NewNop().Sugar()
	client := source.NewClient(5*time.Second, 0, model.RetryPolicy{InitialDelay: time.Millisecond, BackoffFactor: 2}, log)
	return source.NewAPIAdapter(cfg, client, log)
}

func TestAPIAdapter_InitializeRequiresCredentials(t *testing.T) {
	api := newFakeAPI(0)
	defer api.srv.Close()

	cfg := api.config(10)
	cfg.API.ClientSecret = ""
	err := newAPIAdapter(cfg).Initialize(context.Background())
	require.Error(t, err)

	assert.NoError(t, newAPIAdapter(api.config(10)).Initialize(context.Background()))
}

func TestAPIAdapter_CollectPaginatesToCompletion(t *testing.T) {
	api := newFakeAPI(25)
	defer api.srv.Close()

	adapter := newAPIAdapter(api.config(10))
	out, err := adapter.Collect(context.Background())

	require.NoError(t, err)
	assert.Len(t, out.Jobs, 25)
	assert.Empty(t, out.Errors)
	assert.Equal(t, int32(3), api.searchCalls.Load(), "25 jobs at page size 10 is three pages")

	first := out.Jobs[0]
	assert.Equal(t, "job-0", first.ExternalID)
	assert.Equal(t, "jobtech", first.Source)
	assert.Equal(t, "Acme AB", first.Company.Name)
	assert.False(t, first.PublicationDate.IsZero())
}

func TestAPIAdapter_TokenIsCachedAcrossPages(t *testing.T) {
	api := newFakeAPI(25)
	defer api.srv.Close()

	adapter := newAPIAdapter(api.config(10))
	_, err := adapter.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), api.tokenCalls.Load(), "token fetched once and reused")
}

func TestAPIAdapter_ExpiringTokenIsRefreshed(t *testing.T) {
	api := newFakeAPI(5)
	api.expiresIn = 30 // below the 60s refresh margin
	defer api.srv.Close()

	adapter := newAPIAdapter(api.config(10))
	_, err := adapter.Collect(context.Background())
	require.NoError(t, err)
	_, err = adapter.Collect(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, api.tokenCalls.Load(), int32(2), "near-expiry token must be refreshed")
}

func TestAPIAdapter_AuthFailureAbortsRun(t *testing.T) {
	api := newFakeAPI(25)
	defer api.srv.Close()

	adapter := newAPIAdapter(api.config(10))
	require.NoError(t, adapter.Initialize(context.Background()))

	api.failSearches.Store(true)
	_, err := adapter.Collect(context.Background())
	require.Error(t, err, "authentication failure is critical, not partial")
}

func TestAPIAdapter_DetectStructuralChangesIsNoOp(t *testing.T) {
	api := newFakeAPI(0)
	defer api.srv.Close()

	result, err := newAPIAdapter(api.config(10)).DetectStructuralChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ChangeUnchanged, result.Status)
	assert.True(t, result.CanAdaptAutomatically)
}
