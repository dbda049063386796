package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studentjobs/collector-service/internal/model"
	"studentjobs/collector-service/internal/source"
)

func testRetry() model.RetryPolicy {
	return model.RetryPolicy{MaxRetries: 3, InitialDelay: 10 * time.Millisecond, BackoffFactor: 2}
}

func newTestClient(retry model.RetryPolicy) *source.Client {
	return source.NewClient(5*time.Second, 0, retry, zap.NewNop().Sugar())
}

func TestClient_RetriesRateLimitThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	started := time.Now()
	body, err := newTestClient(testRetry()).Get(context.Background(), srv.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(4), attempts.Load())
	// Backoff: 10ms, 20ms, 40ms before the fourth attempt.
	assert.GreaterOrEqual(t, time.Since(started), 70*time.Millisecond)
}

func TestClient_ExhaustedRetriesFail(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(testRetry()).Get(context.Background(), srv.URL, nil)

	require.Error(t, err)
	assert.Equal(t, int32(4), attempts.Load(), "initial attempt plus three retries")
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(testRetry()).Get(context.Background(), srv.URL, nil)

	require.Error(t, err)
	assert.True(t, source.IsAuthFailure(err))
	assert.Equal(t, int32(1), attempts.Load(), "auth failures must not be retried")
}

func TestClient_ContextCancellationStopsRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()

	retry := model.RetryPolicy{MaxRetries: 10, InitialDelay: 50 * time.Millisecond, BackoffFactor: 2}
	_, err := newTestClient(retry).Get(ctx, srv.URL, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
