package git

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// createTestRepo initializes a repository at dir with one commit per entry of
// commitTimes, committed at that time on the default branch
func createTestRepo(t *testing.T, dir string, commitTimes ...time.Time) *git.Repository {
	t.Helper()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	workTree, err := repo.Worktree()
	require.NoError(t, err)

	for i, when := range commitTimes {
		commitFile(t, workTree, dir, i, when)
	}
	return repo
}

// createBranch creates branch from HEAD, checks it out and adds commits to it
func createBranch(t *testing.T, repo *git.Repository, dir, branch string, commitTimes ...time.Time) {
	t.Helper()

	workTree, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, workTree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	}))
	for i, when := range commitTimes {
		commitFile(t, workTree, dir, 100+i, when)
	}
}

func commitFile(t *testing.T, workTree *git.Worktree, dir string, n int, when time.Time) {
	t.Helper()

	name := fmt.Sprintf("file-%d.txt", n)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	_, err := workTree.Add(name)
	require.NoError(t, err)

	signature := &object.Signature{Name: "Test Author", Email: "test@example.com", When: when}
	_, err = workTree.Commit("Add "+name, &git.CommitOptions{Author: signature, Committer: signature})
	require.NoError(t, err)
}
