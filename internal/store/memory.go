package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"k8s.io/utils/clock"
)

// MemoryStore is an in-process Store. It backs single-instance deployments and
// tests; TTLs are evaluated lazily against the injected clock.
type MemoryStore struct {
	mu    sync.Mutex
	clock clock.PassiveClock

	strings map[string]string
	hashes  map[string]map[string]string
	zsets   map[string]map[string]float64
	lists   map[string][]string
	expiry  map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used to evaluate TTLs
func WithClock(c clock.PassiveClock) MemoryOption {
	return func(s *MemoryStore) {
		s.clock = c
	}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		clock:   clock.RealClock{},
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		zsets:   make(map[string]map[string]float64),
		lists:   make(map[string][]string),
		expiry:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// purge removes key if its TTL has elapsed. Callers must hold mu.
func (s *MemoryStore) purge(key string) {
	deadline, ok := s.expiry[key]
	if !ok || s.clock.Now().Before(deadline) {
		return
	}
	s.deleteKey(key)
}

func (s *MemoryStore) deleteKey(key string) {
	delete(s.strings, key)
	delete(s.hashes, key)
	delete(s.zsets, key)
	delete(s.lists, key)
	delete(s.expiry, key)
}

func (s *MemoryStore) exists(key string) bool {
	if _, ok := s.strings[key]; ok {
		return true
	}
	if _, ok := s.hashes[key]; ok {
		return true
	}
	if _, ok := s.zsets[key]; ok {
		return true
	}
	_, ok := s.lists[key]
	return ok
}

func (s *MemoryStore) setTTL(key string, ttl time.Duration) {
	if ttl > 0 {
		s.expiry[key] = s.clock.Now().Add(ttl)
		return
	}
	delete(s.expiry, key)
}

// AcquireLock sets key to owner if it is absent
func (s *MemoryStore) AcquireLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	if _, held := s.strings[key]; held {
		return false, nil
	}
	s.strings[key] = owner
	s.setTTL(key, ttl)
	return true, nil
}

// RefreshLock extends a lock held by owner or acquires a free one
func (s *MemoryStore) RefreshLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	if current, held := s.strings[key]; held && current != owner {
		return false, nil
	}
	s.strings[key] = owner
	s.setTTL(key, ttl)
	return true, nil
}

// ReleaseLock deletes the lock when owner holds it, or unconditionally for an empty owner
func (s *MemoryStore) ReleaseLock(_ context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	current, held := s.strings[key]
	if !held {
		return nil
	}
	if owner == "" || current == owner {
		s.deleteKey(key)
	}
	return nil
}

// ReadRecord returns a copy of the hash record stored at key
func (s *MemoryStore) ReadRecord(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	h, ok := s.hashes[key]
	if !ok {
		return nil, nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

// WriteRecord sets fields on the hash record stored at key
func (s *MemoryStore) WriteRecord(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	if _, isString := s.strings[key]; isString {
		return opError("write record", key, fmt.Errorf("key holds a lock"))
	}
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

// AddToSortedSet adds or updates a sorted set member
func (s *MemoryStore) AddToSortedSet(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

// ascending returns the members of a sorted set ordered by score, then member.
func ascending(z map[string]float64) []ScoredMember {
	members := make([]ScoredMember, 0, len(z))
	for m, score := range z {
		members = append(members, ScoredMember{Member: m, Score: score})
	}
	slices.SortFunc(members, func(a, b ScoredMember) int {
		if c := cmp.Compare(a.Score, b.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Member, b.Member)
	})
	return members
}

// RangeByScore returns members with scores in [minScore, maxScore]
func (s *MemoryStore) RangeByScore(_ context.Context, key string, minScore, maxScore float64) ([]ScoredMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	var out []ScoredMember
	for _, m := range ascending(s.zsets[key]) {
		if m.Score >= minScore && m.Score <= maxScore {
			out = append(out, m)
		}
	}
	return out, nil
}

// RevRange returns a page of members in descending score order
func (s *MemoryStore) RevRange(_ context.Context, key string, offset, count int64) ([]ScoredMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	members := ascending(s.zsets[key])
	slices.Reverse(members)
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(members)) || count <= 0 {
		return nil, nil
	}
	end := min(offset+count, int64(len(members)))
	return members[offset:end], nil
}

// RemoveByScore removes members with scores in [minScore, maxScore]
func (s *MemoryStore) RemoveByScore(_ context.Context, key string, minScore, maxScore float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	z := s.zsets[key]
	for m, score := range z {
		if score >= minScore && score <= maxScore {
			delete(z, m)
		}
	}
	if z != nil && len(z) == 0 {
		s.deleteKey(key)
	}
	return nil
}

// TrimSortedSet keeps the keep highest scored members
func (s *MemoryStore) TrimSortedSet(_ context.Context, key string, keep int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	z := s.zsets[key]
	members := ascending(z)
	for i := 0; i < len(members)-int(max(keep, 0)); i++ {
		delete(z, members[i].Member)
	}
	if z != nil && len(z) == 0 {
		s.deleteKey(key)
	}
	return nil
}

// SortedSetSize returns the number of members in a sorted set
func (s *MemoryStore) SortedSetSize(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	return int64(len(s.zsets[key])), nil
}

// Expire sets a TTL on key. A non-positive TTL deletes the key.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	if !s.exists(key) {
		return nil
	}
	if ttl <= 0 {
		s.deleteKey(key)
		return nil
	}
	s.setTTL(key, ttl)
	return nil
}

// PushQueue appends value to the queue at key
func (s *MemoryStore) PushQueue(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	s.lists[key] = append(s.lists[key], value)
	return nil
}

// PopQueue removes and returns the head of the queue at key
func (s *MemoryStore) PopQueue(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	queue := s.lists[key]
	if len(queue) == 0 {
		return "", false, nil
	}
	head := queue[0]
	if len(queue) == 1 {
		s.deleteKey(key)
	} else {
		s.lists[key] = queue[1:]
	}
	return head, true, nil
}

// Keys returns the sorted list of live keys matching pattern
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid key pattern %q: %w", pattern, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	collect := func(key string) {
		if matcher.Match(key) {
			seen[key] = struct{}{}
		}
	}
	for key := range s.expiry {
		s.purge(key)
	}
	for key := range s.strings {
		collect(key)
	}
	for key := range s.hashes {
		collect(key)
	}
	for key := range s.zsets {
		collect(key)
	}
	for key := range s.lists {
		collect(key)
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

// Delete removes the given keys
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		s.deleteKey(key)
	}
	return nil
}

// Ping always succeeds
func (*MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op
func (*MemoryStore) Close() error {
	return nil
}
