package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultConnectTimeout bounds the initial connectivity check
	DefaultConnectTimeout = 30 * time.Second

	scanBatchSize = 500
)

// releaseScript deletes the lock only when the caller still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends an owned lock or takes a free one
var refreshScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or current == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

// RedisOptions holds the connection settings for a Redis backed store
type RedisOptions struct {
	Addresses  []string
	Username   string
	Password   string
	DB         int
	MasterName string
}

// RedisStore is a Store backed by Redis
type RedisStore struct {
	client redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing Redis client
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// ConnectRedis creates a Redis client and waits until it answers a PING,
// retrying with exponential backoff up to DefaultConnectTimeout.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if len(opts.Addresses) == 0 {
		return nil, fmt.Errorf("at least one redis address is required")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      opts.Addresses,
		Username:   opts.Username,
		Password:   opts.Password,
		DB:         opts.DB,
		MasterName: opts.MasterName,
	})

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis not reachable yet", "addresses", opts.Addresses, "attempt", attempt, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(DefaultConnectTimeout),
	)
	if err != nil {
		_ = client.Close()
		return nil, opError("connect", "", err)
	}

	slog.Info("Connected to redis", "addresses", opts.Addresses, "db", opts.DB)
	return NewRedisStore(client), nil
}

// Client returns the underlying Redis client
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

// AcquireLock sets key to owner if it is absent (SET NX PX)
func (s *RedisStore) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, opError("acquire lock", key, err)
	}
	return ok, nil
}

// RefreshLock extends a lock held by owner or acquires a free one
func (s *RedisStore) RefreshLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, s.client, []string{key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, opError("refresh lock", key, err)
	}
	return n == 1, nil
}

// ReleaseLock deletes the lock when owner holds it, or unconditionally for an empty owner
func (s *RedisStore) ReleaseLock(ctx context.Context, key, owner string) error {
	if owner == "" {
		return opError("release lock", key, s.client.Del(ctx, key).Err())
	}
	if err := releaseScript.Run(ctx, s.client, []string{key}, owner).Err(); err != nil {
		return opError("release lock", key, err)
	}
	return nil
}

// ReadRecord returns all fields of the hash at key, or nil when it does not exist
func (s *RedisStore) ReadRecord(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, opError("read record", key, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// WriteRecord sets fields on the hash at key
func (s *RedisStore) WriteRecord(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return opError("write record", key, s.client.HSet(ctx, key, values).Err())
}

// AddToSortedSet adds or updates a sorted set member
func (s *RedisStore) AddToSortedSet(ctx context.Context, key string, score float64, member string) error {
	return opError("add to sorted set", key, s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

// RangeByScore returns members with scores in [minScore, maxScore]
func (s *RedisStore) RangeByScore(ctx context.Context, key string, minScore, maxScore float64) ([]ScoredMember, error) {
	zs, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: formatScore(minScore),
		Max: formatScore(maxScore),
	}).Result()
	if err != nil {
		return nil, opError("range by score", key, err)
	}
	return toScoredMembers(zs), nil
}

// RevRange returns a page of members in descending score order
func (s *RedisStore) RevRange(ctx context.Context, key string, offset, count int64) ([]ScoredMember, error) {
	if count <= 0 {
		return nil, nil
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, key, offset, offset+count-1).Result()
	if err != nil {
		return nil, opError("reverse range", key, err)
	}
	return toScoredMembers(zs), nil
}

// RemoveByScore removes members with scores in [minScore, maxScore]
func (s *RedisStore) RemoveByScore(ctx context.Context, key string, minScore, maxScore float64) error {
	err := s.client.ZRemRangeByScore(ctx, key, formatScore(minScore), formatScore(maxScore)).Err()
	return opError("remove by score", key, err)
}

// TrimSortedSet keeps the keep highest scored members
func (s *RedisStore) TrimSortedSet(ctx context.Context, key string, keep int64) error {
	if keep <= 0 {
		return opError("trim sorted set", key, s.client.Del(ctx, key).Err())
	}
	return opError("trim sorted set", key, s.client.ZRemRangeByRank(ctx, key, 0, -keep-1).Err())
}

// SortedSetSize returns the number of members in a sorted set
func (s *RedisStore) SortedSetSize(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, opError("sorted set size", key, err)
	}
	return n, nil
}

// Expire sets a TTL on key
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return opError("expire", key, s.client.Expire(ctx, key, ttl).Err())
}

// PushQueue appends value to the queue at key
func (s *RedisStore) PushQueue(ctx context.Context, key, value string) error {
	return opError("push queue", key, s.client.RPush(ctx, key, value).Err())
}

// PopQueue removes and returns the head of the queue at key
func (s *RedisStore) PopQueue(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, opError("pop queue", key, err)
	}
	return v, true, nil
}

// Keys returns all keys matching pattern using SCAN
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, opError("scan", pattern, err)
	}
	return keys, nil
}

// Delete removes the given keys
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return opError("delete", "", s.client.Del(ctx, keys...).Err())
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return opError("ping", "", s.client.Ping(ctx).Err())
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func formatScore(score float64) string {
	switch {
	case math.IsInf(score, 1):
		return "+inf"
	case math.IsInf(score, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(score, 'f', -1, 64)
	}
}

func toScoredMembers(zs []redis.Z) []ScoredMember {
	if len(zs) == 0 {
		return nil
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out
}
