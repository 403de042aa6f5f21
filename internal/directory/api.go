package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/stacklok/reposync/internal/config"
	"github.com/stacklok/reposync/internal/filtering"
	"github.com/stacklok/reposync/internal/httpclient"
)

// APIDirectory reads repositories from the admin backend REST API:
//
//	GET {endpoint}/api/v1/repositories?syncEnabled=true
//	GET {endpoint}/api/v1/repositories/{id}
type APIDirectory struct {
	client   httpclient.Client
	endpoint string
	token    string
	filter   *config.FilterConfig
	filters  filtering.FilterService
}

var _ Directory = (*APIDirectory)(nil)

type apiRepository struct {
	ID           string   `json:"id"`
	Organization string   `json:"organization"`
	Project      string   `json:"project"`
	Topics       []string `json:"topics,omitempty"`
	SyncEnabled  *bool    `json:"syncEnabled,omitempty"`
	AccessToken  string   `json:"accessToken,omitempty"`
}

type apiRepositoryList struct {
	Repositories []apiRepository `json:"repositories"`
}

// NewAPIDirectory creates an APIDirectory. token authenticates reposync to the backend.
func NewAPIDirectory(client httpclient.Client, endpoint, token string, filter *config.FilterConfig) *APIDirectory {
	return &APIDirectory{
		client:   client,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
		filter:   filter,
		filters:  filtering.NewDefaultFilterService(),
	}
}

func (d *APIDirectory) requestOptions() []httpclient.RequestOption {
	if d.token == "" {
		return nil
	}
	return []httpclient.RequestOption{httpclient.WithBearerToken(d.token)}
}

// ListSyncCandidates fetches the sync-enabled repositories
func (d *APIDirectory) ListSyncCandidates(ctx context.Context) ([]Candidate, error) {
	data, err := d.client.Get(ctx, d.endpoint+"/api/v1/repositories?syncEnabled=true", d.requestOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}

	var list apiRepositoryList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode repository list: %w", err)
	}

	candidates := make([]Candidate, 0, len(list.Repositories))
	for _, r := range list.Repositories {
		if r.SyncEnabled != nil && !*r.SyncEnabled {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:     r.ID,
			Name:   r.Organization + "/" + r.Project,
			Topics: r.Topics,
		})
	}
	return applyFilter(d.filters, candidates, d.filter), nil
}

// GetRepository fetches a repository with its access token
func (d *APIDirectory) GetRepository(ctx context.Context, id string) (*Repository, error) {
	data, err := d.client.Get(ctx, d.endpoint+"/api/v1/repositories/"+url.PathEscape(id), d.requestOptions()...)
	if err != nil {
		if httpclient.StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id)
		}
		return nil, fmt.Errorf("failed to get repository %s: %w", id, err)
	}

	var r apiRepository
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRepository, id, err)
	}
	if r.Organization == "" || r.Project == "" {
		return nil, fmt.Errorf("%w: %s: organization and project are required", ErrInvalidRepository, id)
	}

	return &Repository{
		ID:           id,
		Organization: r.Organization,
		Project:      r.Project,
		Credentials:  Credentials{Token: r.AccessToken},
	}, nil
}
