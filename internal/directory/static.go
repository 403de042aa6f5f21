package directory

import (
	"context"
	"fmt"

	"github.com/stacklok/reposync/internal/config"
	"github.com/stacklok/reposync/internal/filtering"
)

// StaticDirectory serves the repositories listed in the configuration file
type StaticDirectory struct {
	repos   []config.RepositoryConfig
	byID    map[string]int
	filter  *config.FilterConfig
	filters filtering.FilterService
}

var _ Directory = (*StaticDirectory)(nil)

// NewStaticDirectory creates a StaticDirectory
func NewStaticDirectory(cfg *config.StaticDirectoryConfig, filter *config.FilterConfig) *StaticDirectory {
	d := &StaticDirectory{
		byID:    make(map[string]int),
		filter:  filter,
		filters: filtering.NewDefaultFilterService(),
	}
	if cfg != nil {
		d.repos = cfg.Repositories
	}
	for i, r := range d.repos {
		d.byID[r.ID] = i
	}
	return d
}

// ListSyncCandidates returns the enabled repositories that pass the filter
func (d *StaticDirectory) ListSyncCandidates(_ context.Context) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(d.repos))
	for _, r := range d.repos {
		if r.Disabled {
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

// GetRepository resolves a configured repository and reads its token
func (d *StaticDirectory) GetRepository(_ context.Context, id string) (*Repository, error) {
	i, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id)
	}
	r := d.repos[i]

	token, err := r.GetToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRepository, id, err)
	}

	return &Repository{
		ID:           r.ID,
		Organization: r.Organization,
		Project:      r.Project,
		Credentials:  Credentials{Token: token},
	}, nil
}
