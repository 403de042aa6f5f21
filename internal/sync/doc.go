// Package sync defines the domain types shared by the repository sync
// orchestration layer.
//
// A sync attempt for one repository is represented by a Job, which moves from
// pending to running once the repository lock and a rate limit slot have been
// obtained, and finishes either completed or failed. The outcome returned to
// callers is a Result; failures carry an *Error whose Kind classifies the cause.
//
// # Subpackages
//
//   - state: persists jobs, per-repository sync state and the failure index
//   - orchestrator: runs a single sync attempt (lock, job record, rate limit,
//     adapter call, metrics, notification policy)
//   - scheduler: the leader-elected recurring timer that runs batches of
//     repositories through the orchestrator
//
// # Error Kinds
//
// Error kinds map to how callers react:
//
//   - KindLockContention: another worker already syncs the repository
//   - KindNotFound: the repository does not exist in the directory
//   - KindConfigurationInvalid: the repository has no usable credentials
//   - KindUpstreamUnavailable: the external API or directory failed
//   - KindStoreUnavailable: the shared state store could not be reached
//   - KindCancelled: an operator cancelled the attempt
//   - KindInternal: anything else, including recovered panics
package sync
