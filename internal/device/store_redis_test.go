package device

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formatUint(n uint64) string {
	return strconv.FormatUint(n, 10)
}

func newMiniredisStore(t *testing.T, maxOwned int) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return NewRedisStore(client, "test", maxOwned), mr
}

func TestRedisStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T, maxOwned int) (Store, func(uint64)) {
		s, mr := newMiniredisStore(t, maxOwned)
		return s, func(count uint64) {
			require.NoError(t, mr.Set("test:count", formatUint(count)))
		}
	})
}

func TestRedisStore_KeyLayout(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniredisStore(t, 2)

	id := testID(0xab)
	require.NoError(t, s.TryCommit(ctx, Record{ID: id, Owner: "alice"}))

	owner, err := mr.Get("test:device:" + id.String())
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	list, err := mr.List("test:owner:alice")
	require.NoError(t, err)
	assert.Equal(t, []string{id.String()}, list)

	count, err := mr.Get("test:count")
	require.NoError(t, err)
	assert.Equal(t, "1", count)
}

func TestRedisStore_CorruptCounter(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniredisStore(t, 2)
	require.NoError(t, mr.Set("test:count", "not-a-number"))

	_, err := s.Count(ctx)
	assert.Error(t, err)

	err = s.TryCommit(ctx, Record{ID: testID(1), Owner: "alice"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCounterOverflow))
	assert.False(t, mr.Exists("test:device:"+testID(1).String()))
}

func TestRedisStore_ServerDown(t *testing.T) {
	ctx := context.Background()
	s, mr := newMiniredisStore(t, 2)
	mr.Close()

	err := s.TryCommit(ctx, Record{ID: testID(1), Owner: "alice"})
	assert.Error(t, err)

	_, err = s.Get(ctx, testID(1))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrDeviceNotFound))
}
