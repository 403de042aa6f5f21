package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/reposync/internal/directory"
	"github.com/stacklok/reposync/internal/httpclient"
)

const (
	// DefaultMaxElapsedTime bounds the retries of one sync request
	DefaultMaxElapsedTime = 5 * time.Minute

	// RepositoryTokenHeader carries the source-control token to the worker
	RepositoryTokenHeader = "X-Repository-Token"

	syncPath = "/api/v1/syncs"
)

// HTTPAdapter posts sync requests to the sync worker. Throttled and
// unavailable responses are retried with exponential backoff, honouring
// Retry-After. Other client errors fail immediately.
type HTTPAdapter struct {
	client     httpclient.Client
	endpoint   string
	token      string
	maxElapsed time.Duration
	newBackOff func() backoff.BackOff
}

var _ Adapter = (*HTTPAdapter)(nil)

// Option configures an HTTPAdapter
type Option func(*HTTPAdapter)

// WithToken sets the bearer token that authenticates reposync to the worker
func WithToken(token string) Option {
	return func(a *HTTPAdapter) {
		a.token = token
	}
}

// WithMaxElapsedTime bounds how long a request is retried
func WithMaxElapsedTime(d time.Duration) Option {
	return func(a *HTTPAdapter) {
		a.maxElapsed = d
	}
}

// WithBackOff replaces the exponential backoff policy
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(a *HTTPAdapter) {
		a.newBackOff = newBackOff
	}
}

// NewHTTPAdapter creates an HTTPAdapter for the worker at endpoint
func NewHTTPAdapter(client httpclient.Client, endpoint string, opts ...Option) *HTTPAdapter {
	a := &HTTPAdapter{
		client:     client,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		maxElapsed: DefaultMaxElapsedTime,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type syncRequest struct {
	RepositoryID string     `json:"repositoryId"`
	Organization string     `json:"organization"`
	Project      string     `json:"project"`
	Since        *time.Time `json:"since,omitempty"`
}

// RunSync asks the worker to pull activity for repo
func (a *HTTPAdapter) RunSync(ctx context.Context, repo *directory.Repository, since *time.Time) (*Outcome, error) {
	req := syncRequest{
		RepositoryID: repo.ID,
		Organization: repo.Organization,
		Project:      repo.Project,
		Since:        since,
	}

	opts := []httpclient.RequestOption{httpclient.WithHeader(RepositoryTokenHeader, repo.Credentials.Token)}
	if a.token != "" {
		opts = append(opts, httpclient.WithBearerToken(a.token))
	}

	attempt := 0
	operation := func() (*Outcome, error) {
		attempt++
		data, err := a.client.PostJSON(ctx, a.endpoint+syncPath, req, opts...)
		if err != nil {
			return nil, classify(err)
		}
		var out Outcome
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to decode sync response: %w", err))
		}
		return &out, nil
	}

	out, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(a.newBackOff()),
		backoff.WithMaxElapsedTime(a.maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Sync request failed, retrying",
				"repository", repo.ID,
				"attempt", attempt,
				"retry_in", next,
				"error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("sync request for %s failed after %d attempt(s): %w", repo.ID, attempt, err)
	}
	return out, nil
}

// classify marks which worker errors are worth retrying
func classify(err error) error {
	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		// transport errors
		return err
	}

	switch {
	case httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode == http.StatusServiceUnavailable:
		if secs := int(httpErr.RetryAfter / time.Second); secs > 0 {
			return fmt.Errorf("%w (%w)", err, backoff.RetryAfter(secs))
		}
		return err
	case httpErr.Retryable():
		return err
	default:
		return backoff.Permanent(err)
	}
}
