package store

import "strings"

// DefaultKeyPrefix is prepended to every key written by reposync
const DefaultKeyPrefix = "reposync:"

// Keys builds the store keys used by reposync components. Every key shares
// the same prefix so that all state can be enumerated and wiped.
type Keys struct {
	prefix string
}

// NewKeys creates a key builder with the given prefix. An empty prefix uses DefaultKeyPrefix.
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return Keys{prefix: prefix}
}

// Prefix returns the key prefix
func (k Keys) Prefix() string {
	return k.prefix
}

// All returns a pattern matching every reposync key
func (k Keys) All() string {
	return k.prefix + "*"
}

// RepositoryLock is the per-repository sync lock
func (k Keys) RepositoryLock(repositoryID string) string {
	return k.prefix + "lock:repo:" + repositoryID
}

// SchedulerLock is the global scheduler leader lock
func (k Keys) SchedulerLock() string {
	return k.prefix + "lock:scheduler"
}

// RateWindow is the per-repository request timestamp sorted set
func (k Keys) RateWindow(repositoryID string) string {
	return k.prefix + "ratelimit:" + repositoryID
}

// Job is the hash record of a single sync job
func (k Keys) Job(jobID string) string {
	return k.prefix + "job:" + jobID
}

// RepositoryJobs is the time ordered job history of a repository
func (k Keys) RepositoryJobs(repositoryID string) string {
	return k.prefix + "jobs:repo:" + repositoryID
}

// RepositoryFailures indexes failed jobs of a repository by completion time
func (k Keys) RepositoryFailures(repositoryID string) string {
	return k.prefix + "failures:repo:" + repositoryID
}

// RepositoryState is the per-repository sync state record
func (k Keys) RepositoryState(repositoryID string) string {
	return k.prefix + "repo:" + repositoryID
}

// SchedulerStatus is the singleton scheduler status record
func (k Keys) SchedulerStatus() string {
	return k.prefix + "scheduler:status"
}

// SchedulerConfig is the singleton scheduler configuration record
func (k Keys) SchedulerConfig() string {
	return k.prefix + "scheduler:config"
}

// Executions is the time ordered batch execution history
func (k Keys) Executions() string {
	return k.prefix + "scheduler:executions"
}

// Execution is the summary record of a single batch
func (k Keys) Execution(batchID string) string {
	return k.prefix + "execution:" + batchID
}

// NotificationConfig is the singleton notification configuration record
func (k Keys) NotificationConfig() string {
	return k.prefix + "notification:config"
}

// ManualQueue holds repository ids queued for the next batch
func (k Keys) ManualQueue() string {
	return k.prefix + "queue:manual"
}

// EventsChannel is the pub/sub channel live status events are published to
func (k Keys) EventsChannel() string {
	return k.prefix + "events"
}
