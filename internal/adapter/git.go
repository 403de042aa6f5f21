package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stacklok/reposync/internal/directory"
	"github.com/stacklok/reposync/internal/git"
)

// DefaultGitURLTemplate builds clone URLs for GitHub hosted repositories
const DefaultGitURLTemplate = "https://github.com/{organization}/{project}.git"

// GitAdapter counts the commits of a repository since the last sync by
// cloning it directly, for deployments without a sync worker
type GitAdapter struct {
	client      git.Client
	urlTemplate string
	branch      string
}

var _ Adapter = (*GitAdapter)(nil)

// NewGitAdapter creates a GitAdapter. urlTemplate may reference {organization},
// {project} and {id}. An empty branch follows the remote HEAD.
func NewGitAdapter(client git.Client, urlTemplate, branch string) *GitAdapter {
	if urlTemplate == "" {
		urlTemplate = DefaultGitURLTemplate
	}
	return &GitAdapter{client: client, urlTemplate: urlTemplate, branch: branch}
}

// RunSync counts the commits made since since, or the full history when since is nil
func (a *GitAdapter) RunSync(ctx context.Context, repo *directory.Repository, since *time.Time) (*Outcome, error) {
	url := a.cloneURL(repo)
	count, err := a.client.CountCommits(ctx, &git.ActivityQuery{
		URL:    url,
		Token:  repo.Credentials.Token,
		Branch: a.branch,
		Since:  since,
	})
	switch {
	case err == nil:
	case errors.Is(err, git.ErrAccessDenied):
		return nil, fmt.Errorf("%w: %w", ErrCredentialsRejected, err)
	case errors.Is(err, git.ErrRepositoryNotFound):
		return nil, fmt.Errorf("%w: %w", ErrRepositoryNotFound, err)
	default:
		return nil, fmt.Errorf("failed to read activity of %s: %w", repo.ID, err)
	}

	slog.Debug("Repository activity read", "repository", repo.ID, "commits", count, "since", since)
	return &Outcome{RecordsProcessed: count}, nil
}

func (a *GitAdapter) cloneURL(repo *directory.Repository) string {
	return strings.NewReplacer(
		"{organization}", repo.Organization,
		"{project}", repo.Project,
		"{id}", repo.ID,
	).Replace(a.urlTemplate)
}
