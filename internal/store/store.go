// Package store provides the shared state store used by every reposync instance.
//
// The store holds locks, hash records, sorted sets and simple queues. It carries
// no business logic: the rate limiter, the orchestrator and the scheduler each
// own their keys and only rely on the atomicity of single store operations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// ErrUnavailable is matched by every error caused by the backing store being
// unreachable or failing a command.
var ErrUnavailable = errors.New("shared state store unavailable")

// ScoredMember is a sorted set member together with its score
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the shared key/value, sorted set and queue store
type Store interface {
	// AcquireLock atomically sets key to owner if it is absent, with the given TTL.
	// Returns false when the key is already held. Expired locks are free.
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// RefreshLock extends the TTL of a lock held by owner, or acquires it if it is free.
	// Returns false when another owner holds the lock.
	RefreshLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// ReleaseLock deletes the lock if owner holds it. An empty owner releases
	// the lock unconditionally. Releasing an absent lock is not an error.
	ReleaseLock(ctx context.Context, key, owner string) error

	// ReadRecord returns all fields of a hash record, or nil if it does not exist
	ReadRecord(ctx context.Context, key string) (map[string]string, error)

	// WriteRecord sets the given fields on a hash record, leaving other fields untouched
	WriteRecord(ctx context.Context, key string, fields map[string]string) error

	// AddToSortedSet adds or updates a member of a sorted set
	AddToSortedSet(ctx context.Context, key string, score float64, member string) error

	// RangeByScore returns members with min <= score <= max in ascending score order
	RangeByScore(ctx context.Context, key string, minScore, maxScore float64) ([]ScoredMember, error)

	// RevRange returns count members starting at offset in descending score order
	RevRange(ctx context.Context, key string, offset, count int64) ([]ScoredMember, error)

	// RemoveByScore removes members with min <= score <= max
	RemoveByScore(ctx context.Context, key string, minScore, maxScore float64) error

	// TrimSortedSet keeps only the keep highest scored members
	TrimSortedSet(ctx context.Context, key string, keep int64) error

	// SortedSetSize returns the number of members in a sorted set
	SortedSetSize(ctx context.Context, key string) (int64, error)

	// Expire sets a TTL on any key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// PushQueue appends a value to the tail of a FIFO queue
	PushQueue(ctx context.Context, key, value string) error

	// PopQueue removes and returns the head of a FIFO queue. The boolean is
	// false when the queue is empty.
	PopQueue(ctx context.Context, key string) (string, bool, error)

	// Keys returns all keys matching a glob pattern
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Delete removes the given keys
	Delete(ctx context.Context, keys ...string) error

	// Ping checks that the store is reachable
	Ping(ctx context.Context) error

	// Close releases the resources held by the store
	Close() error
}

// OpError describes a failed store operation. It matches ErrUnavailable with errors.Is.
type OpError struct {
	Op  string
	Key string
	Err error
}

// Error returns the error message
func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap exposes both ErrUnavailable and the underlying cause
func (e *OpError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

func opError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Key: key, Err: err}
}
