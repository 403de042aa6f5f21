package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/reposync/internal/directory"
	"github.com/stacklok/reposync/internal/httpclient"
)

var testRepo = &directory.Repository{
	ID:           "api",
	Organization: "acme",
	Project:      "api",
	Credentials:  directory.Credentials{Token: "ghp_repo"},
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

// workerServer replies with statuses in order, then succeeds
func workerServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			return
		}
		assert.Equal(t, syncPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"recordsProcessed": 42}`))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestAdapter(url string) *HTTPAdapter {
	return NewHTTPAdapter(httpclient.NewDefaultClient(5*time.Second), url,
		WithBackOff(fastBackOff), WithMaxElapsedTime(5*time.Second))
}

func TestHTTPAdapter_RunSync_SendsRequest(t *testing.T) {
	t.Parallel()

	since := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var got syncRequest
	var repoToken, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		repoToken = r.Header.Get(RepositoryTokenHeader)
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"recordsProcessed": 7}`))
	}))
	t.Cleanup(server.Close)

	a := NewHTTPAdapter(httpclient.NewDefaultClient(5*time.Second), server.URL+"/", WithToken("worker-token"))
	out, err := a.RunSync(context.Background(), testRepo, &since)

	require.NoError(t, err)
	assert.Equal(t, 7, out.RecordsProcessed)
	assert.Equal(t, "ghp_repo", repoToken)
	assert.Equal(t, "Bearer worker-token", auth)
	assert.Equal(t, "api", got.RepositoryID)
	assert.Equal(t, "acme", got.Organization)
	require.NotNil(t, got.Since)
	assert.True(t, since.Equal(*got.Since))
}

func TestHTTPAdapter_RunSync_Retries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		statuses  []int
		wantErr   bool
		wantCalls int32
	}{
		{name: "success first time", wantCalls: 1},
		{name: "throttled then success", statuses: []int{429, 429}, wantCalls: 3},
		{name: "unavailable then success", statuses: []int{503}, wantCalls: 2},
		{name: "server error retried", statuses: []int{502}, wantCalls: 2},
		{name: "bad request is permanent", statuses: []int{400}, wantErr: true, wantCalls: 1},
		{name: "unauthorized is permanent", statuses: []int{401}, wantErr: true, wantCalls: 1},
		{name: "not found is permanent", statuses: []int{404}, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, calls := workerServer(t, tt.statuses...)
			out, err := newTestAdapter(server.URL).RunSync(context.Background(), testRepo, nil)

			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.statuses[0], httpclient.StatusCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 42, out.RecordsProcessed)
		})
	}
}

func TestHTTPAdapter_RunSync_HonoursRetryAfter(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var first time.Time
	var gap time.Duration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			first = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		gap = time.Since(first)
		_, _ = w.Write([]byte(`{"recordsProcessed": 1}`))
	}))
	t.Cleanup(server.Close)

	_, err := newTestAdapter(server.URL).RunSync(context.Background(), testRepo, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, gap, 900*time.Millisecond)
}

func TestHTTPAdapter_RunSync_GivesUp(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	a := NewHTTPAdapter(httpclient.NewDefaultClient(time.Second), server.URL,
		WithBackOff(fastBackOff), WithMaxElapsedTime(50*time.Millisecond))
	_, err := a.RunSync(context.Background(), testRepo, nil)

	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, httpclient.StatusCode(err))
	assert.Contains(t, err.Error(), "attempt(s)")
}

func TestHTTPAdapter_RunSync_ContextCancelled(t *testing.T) {
	t.Parallel()

	server, _ := workerServer(t, 503, 503, 503, 503)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAdapter(server.URL).RunSync(ctx, testRepo, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHTTPAdapter_RunSync_BadResponse(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`not json`))
	}))
	t.Cleanup(server.Close)

	_, err := newTestAdapter(server.URL).RunSync(context.Background(), testRepo, nil)
	require.ErrorContains(t, err, "failed to decode sync response")
	assert.Equal(t, int32(1), calls.Load())
}
