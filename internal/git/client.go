// Package git reads commit activity from remote repositories with go-git.
package git

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// tokenUsername is sent with token authentication; hosts only check the password
const tokenUsername = "x-access-token"

var (
	// ErrAccessDenied is returned when the remote rejects or requires credentials
	ErrAccessDenied = errors.New("repository access denied")

	// ErrRepositoryNotFound is returned when the remote does not know the repository
	ErrRepositoryNotFound = errors.New("repository not found")
)

// ActivityQuery selects the commits to count
type ActivityQuery struct {
	// URL is the clone URL or a local path
	URL string

	// Token authenticates over HTTP(S). Empty means anonymous.
	Token string

	// Branch limits the history to one branch. Empty means the remote HEAD.
	Branch string

	// Since drops commits committed before it. Nil counts the full history.
	Since *time.Time
}

// Client defines the interface for Git operations
type Client interface {
	// CountCommits returns the number of commits matching the query
	CountCommits(ctx context.Context, q *ActivityQuery) (int, error)
}

// defaultClient implements Client with an in-memory clone per call
type defaultClient struct{}

// NewDefaultClient creates a Client backed by go-git
func NewDefaultClient() Client {
	return &defaultClient{}
}

// CountCommits clones the repository into memory without a worktree and
// walks the history from the selected branch
func (*defaultClient) CountCommits(ctx context.Context, q *ActivityQuery) (int, error) {
	opts := &git.CloneOptions{
		URL:          q.URL,
		SingleBranch: true,
		Tags:         git.NoTags,
		NoCheckout:   true,
	}
	if q.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(q.Branch)
	}
	if q.Token != "" {
		opts.Auth = &githttp.BasicAuth{Username: tokenUsername, Password: q.Token}
	}

	storerFs := memfs.New()
	objectCache := cache.NewObjectLRUDefault()
	defer func() {
		objectCache.Clear()
		_ = util.RemoveAll(storerFs, "/")
	}()

	repo, err := git.CloneContext(ctx, filesystem.NewStorage(storerFs, objectCache), nil, opts)
	if err != nil {
		return 0, classifyCloneError(err)
	}

	head, err := repo.Head()
	if err != nil {
		return 0, fmt.Errorf("failed to get HEAD reference: %w", err)
	}

	commits, err := repo.Log(&git.LogOptions{From: head.Hash(), Since: q.Since})
	if err != nil {
		return 0, fmt.Errorf("failed to read history: %w", err)
	}
	defer commits.Close()

	count := 0
	err = commits.ForEach(func(*object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return 0, fmt.Errorf("failed to walk history: %w", err)
	}

	slog.Debug("Counted commits", "url", q.URL, "branch", head.Name().Short(), "commits", count)
	return count, nil
}

// classifyCloneError maps transport failures onto the package errors
func classifyCloneError(err error) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	case errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, plumbing.ErrReferenceNotFound):
		return fmt.Errorf("%w: %w", ErrRepositoryNotFound, err)
	default:
		return fmt.Errorf("failed to clone repository: %w", err)
	}
}
