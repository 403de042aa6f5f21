// Package directory provides the list of repositories reposync keeps in sync
// and the connection details needed to sync each one.
package directory

//go:generate mockgen -destination=mocks/mock_directory.go -package=mocks -source=directory.go Directory

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stacklok/reposync/internal/config"
	"github.com/stacklok/reposync/internal/filtering"
)

var (
	// ErrRepositoryNotFound is returned when the directory does not know a repository
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrInvalidRepository is returned when a repository's settings cannot be used
	ErrInvalidRepository = errors.New("invalid repository configuration")
)

// Candidate is a repository eligible for scheduled syncs
type Candidate struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Topics []string `json:"topics,omitempty"`
}

// Credentials authenticate against the source-control API
type Credentials struct {
	Token string `json:"-"`
}

// Repository carries everything needed to sync one repository
type Repository struct {
	ID           string      `json:"id"`
	Organization string      `json:"organization"`
	Project      string      `json:"project"`
	Credentials  Credentials `json:"-"`
}

// Name returns organization/project
func (r *Repository) Name() string {
	return r.Organization + "/" + r.Project
}

// Directory lists sync candidates and resolves repositories
type Directory interface {
	// ListSyncCandidates returns the repositories to include in a scheduled batch, in order
	ListSyncCandidates(ctx context.Context) ([]Candidate, error)

	// GetRepository returns a repository with its credentials, or ErrRepositoryNotFound
	GetRepository(ctx context.Context, id string) (*Repository, error)
}

// applyFilter drops candidates rejected by filter, keeping order
func applyFilter(svc filtering.FilterService, candidates []Candidate, filter *config.FilterConfig) []Candidate {
	if filter == nil {
		return candidates
	}
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		ok, reason := svc.ShouldInclude(c.Name, c.Topics, filter)
		if !ok {
			slog.Debug("Excluding sync candidate", "repository", c.ID, "reason", reason)
			continue
		}
		kept = append(kept, c)
	}
	if excluded := len(candidates) - len(kept); excluded > 0 {
		slog.Info("Filtered sync candidates", "included", len(kept), "excluded", excluded)
	}
	return kept
}
