package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultCommitRetries bounds how often an optimistic store retries a
// commit that lost a race before returning ErrStoreContention.
const DefaultCommitRetries = 16

// RedisStore keeps the registry in Redis:
//
//	<prefix>:device:<hex>   string, the owner
//	<prefix>:owner:<owner>  list of hex ids in registration order
//	<prefix>:count          decimal uint64
//
// TryCommit WATCHes all three keys, checks, and writes in MULTI/EXEC.
// A concurrent write to any watched key aborts the EXEC and the commit is
// retried from a fresh read.
type RedisStore struct {
	client   redis.UniversalClient
	prefix   string
	maxOwned int
	retries  int
}

// NewRedisStore returns a store using client with keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, maxOwned int) *RedisStore {
	return &RedisStore{
		client:   client,
		prefix:   prefix,
		maxOwned: maxOwned,
		retries:  DefaultCommitRetries,
	}
}

func (s *RedisStore) deviceKey(id ID) string      { return s.prefix + ":device:" + id.String() }
func (s *RedisStore) ownerKey(owner Owner) string { return s.prefix + ":owner:" + string(owner) }
func (s *RedisStore) countKey() string            { return s.prefix + ":count" }

// Contains reports whether id is registered.
func (s *RedisStore) Contains(ctx context.Context, id ID) (bool, error) {
	n, err := s.client.Exists(ctx, s.deviceKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis store: checking device: %w", err)
	}
	return n > 0, nil
}

// Get returns the record for id.
func (s *RedisStore) Get(ctx context.Context, id ID) (Record, error) {
	owner, err := s.client.Get(ctx, s.deviceKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrDeviceNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis store: reading device: %w", err)
	}
	return Record{ID: id, Owner: Owner(owner)}, nil
}

// OwnedBy returns the owner's device ids in registration order.
func (s *RedisStore) OwnedBy(ctx context.Context, owner Owner) ([]ID, error) {
	raw, err := s.client.LRange(ctx, s.ownerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: reading owner index: %w", err)
	}
	ids := make([]ID, 0, len(raw))
	for _, r := range raw {
		id, err := ParseID(r)
		if err != nil {
			return nil, fmt.Errorf("redis store: owner index for %q: %w", owner, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Count returns the number of registered devices.
func (s *RedisStore) Count(ctx context.Context) (uint64, error) {
	return s.readCount(ctx, s.client)
}

// stringGetter is the slice of the client API shared by redis.UniversalClient and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) readCount(ctx context.Context, c stringGetter) (uint64, error) {
	raw, err := c.Get(ctx, s.countKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis store: reading counter: %w", err)
	}
	count, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis store: parsing counter %q: %w", raw, err)
	}
	return count, nil
}

// TryCommit registers rec with an optimistic WATCH/MULTI transaction.
func (s *RedisStore) TryCommit(ctx context.Context, rec Record) error {
	deviceKey, ownerKey, countKey := s.deviceKey(rec.ID), s.ownerKey(rec.Owner), s.countKey()

	commit := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, deviceKey).Result()
		if err != nil {
			return fmt.Errorf("redis store: checking device: %w", err)
		}
		count, err := s.readCount(ctx, tx)
		if err != nil {
			return err
		}
		owned, err := tx.LLen(ctx, ownerKey).Result()
		if err != nil {
			return fmt.Errorf("redis store: reading owner index: %w", err)
		}

		if err := checkCommit(exists > 0, count, int(owned), s.maxOwned); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, deviceKey, string(rec.Owner), 0)
			pipe.RPush(ctx, ownerKey, rec.ID.String())
			pipe.Set(ctx, countKey, strconv.FormatUint(count+1, 10), 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.retries; attempt++ {
		err := s.client.Watch(ctx, commit, deviceKey, ownerKey, countKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrStoreContention
}
