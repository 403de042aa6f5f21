// Package adapter runs the actual data pull for one repository by calling the
// sync worker that talks to the source-control API.
package adapter

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks -source=adapter.go Adapter

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/reposync/internal/directory"
)

var (
	// ErrCredentialsRejected means the source rejected the repository credentials
	ErrCredentialsRejected = errors.New("repository credentials rejected")

	// ErrRepositoryNotFound means the source does not know the repository
	ErrRepositoryNotFound = errors.New("repository not found upstream")
)

// Outcome is the result of a successful sync
type Outcome struct {
	RecordsProcessed int `json:"recordsProcessed"`
}

// Adapter pulls activity for a repository. since is nil for a full sync.
type Adapter interface {
	RunSync(ctx context.Context, repo *directory.Repository, since *time.Time) (*Outcome, error)
}
