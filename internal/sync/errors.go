package sync

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies the cause of a sync failure
type Kind string

const (
	// KindLockContention means the repository is already being synchronized
	KindLockContention Kind = "lock_contention"

	// KindNotFound means the repository is unknown
	KindNotFound Kind = "not_found"

	// KindConfigurationInvalid means the repository cannot be synchronized as configured
	KindConfigurationInvalid Kind = "configuration_invalid"

	// KindUpstreamUnavailable means the external API or a collaborator failed
	KindUpstreamUnavailable Kind = "upstream_unavailable"

	// KindStoreUnavailable means the shared state store could not be reached
	KindStoreUnavailable Kind = "store_unavailable"

	// KindCancelled means the attempt was cancelled by an operator
	KindCancelled Kind = "cancelled"

	// KindInternal is any other failure
	KindInternal Kind = "internal"
)

// ErrAlreadyInProgress is the cause attached to lock contention failures
var ErrAlreadyInProgress = errors.New("sync already in progress")

// ErrCancelled is the cause attached to cancelled jobs
var ErrCancelled = errors.New("cancelled")

// Error represents a classified sync failure
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError creates a new sync error
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the kind and the full message
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
	}{Kind: e.Kind, Message: e.Error()})
}

// KindOf returns the kind of err, or KindInternal when err is not a sync error
func KindOf(err error) Kind {
	var syncErr *Error
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return KindInternal
}
