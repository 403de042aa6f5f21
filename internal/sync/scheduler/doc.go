// Package scheduler runs recurring sync batches.
//
// Every reposync instance runs a Service, but only the instance holding the
// scheduler leader lock runs the timer. On each tick the leader loads the
// sync candidates, puts manually requested repositories first, and syncs up to
// MaxConcurrentRepos of them one after another with a pause in between. Each
// batch is summarized as a status.Execution and rolled into the cumulative
// status.SchedulerStatus.
//
// Duplicate batches started by a stale leader are harmless: the per-repository
// locks taken by the orchestrator reject the second attempt.
package scheduler
