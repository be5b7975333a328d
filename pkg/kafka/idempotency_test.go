package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliguard/intelliguard/pkg/logger"
)

// ---------------------------------------------------------------------------
// MemoryIdempotencyStore
// ---------------------------------------------------------------------------

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryIdempotencyStore(time.Minute)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "e1"))

	seen, err := s.Contains(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, err = s.Contains(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Zero(t, s.Len())
}

// ---------------------------------------------------------------------------
// RedisIdempotencyStore
// ---------------------------------------------------------------------------

func setupRedisStore(t *testing.T, ttl time.Duration) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIdempotencyStore(client, "fraud-group", ttl), mr
}

func TestRedisIdempotencyStore_AddContains(t *testing.T) {
	s, mr := setupRedisStore(t, time.Hour)
	ctx := context.Background()

	seen, err := s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Add(ctx, "evt-1"))
	assert.True(t, mr.Exists("idempotency:fraud-group:evt-1"))

	seen, err = s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRedisIdempotencyStore_TTL(t *testing.T) {
	s, mr := setupRedisStore(t, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "evt-2"))
	assert.Equal(t, 10*time.Minute, mr.TTL("idempotency:fraud-group:evt-2"))

	mr.FastForward(11 * time.Minute)
	seen, err := s.Contains(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisIdempotencyStore_ServerDown(t *testing.T) {
	s, mr := setupRedisStore(t, time.Minute)
	mr.Close()

	_, err := s.Contains(context.Background(), "evt")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// IdempotentHandler
// ---------------------------------------------------------------------------

type failingStore struct{}

func (failingStore) Contains(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}
func (failingStore) Add(context.Context, string) error { return errors.New("store down") }

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	s, _ := setupRedisStore(t, time.Hour)
	calls := 0
	h := IdempotentHandler(s, func(context.Context, *Event) error { calls++; return nil }, logger.Discard())

	ev := &Event{EventID: "dup-1", EventType: "payment.pending"}
	require.NoError(t, h(context.Background(), ev))
	require.NoError(t, h(context.Background(), ev))
	assert.Equal(t, 1, calls)
}

func TestIdempotentHandler_FailureNotRecorded(t *testing.T) {
	s := NewMemoryIdempotencyStore(time.Hour)
	calls := 0
	h := IdempotentHandler(s, func(context.Context, *Event) error {
		calls++
		if calls == 1 {
			return errors.New("first try fails")
		}
		return nil
	}, logger.Discard())

	ev := &Event{EventID: "e"}
	assert.Error(t, h(context.Background(), ev))
	assert.NoError(t, h(context.Background(), ev))
	assert.Equal(t, 2, calls)
}

func TestIdempotentHandler_StoreFailureStillProcesses(t *testing.T) {
	calls := 0
	h := IdempotentHandler(failingStore{}, func(context.Context, *Event) error { calls++; return nil }, logger.Discard())

	require.NoError(t, h(context.Background(), &Event{EventID: "x"}))
	assert.Equal(t, 1, calls)
}

func TestIdempotentHandler_NoEventIDPassesThrough(t *testing.T) {
	s := NewMemoryIdempotencyStore(time.Hour)
	calls := 0
	h := IdempotentHandler(s, func(context.Context, *Event) error { calls++; return nil }, logger.Discard())

	require.NoError(t, h(context.Background(), &Event{}))
	require.NoError(t, h(context.Background(), &Event{}))
	assert.Equal(t, 2, calls)
	assert.Zero(t, s.Len())
}
