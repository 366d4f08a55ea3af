package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the store's notion of now so window math can be tested
// without sleeping.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time          { return c.current }
func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func setupStore(t *testing.T) (*RedisStore, *fakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := &fakeClock{current: time.UnixMilli(1_700_000_000_000)}
	store := NewRedisStore(client)
	store.now = clock.Now

	return store, clock
}

func TestHitAllowsUpToLimit(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, _, allowed, err := store.Hit(ctx, "rl:vote:user:u1", time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, allowed, "hit %d", i)
		assert.Equal(t, int64(i), count, "hit %d", i)
	}

	count, _, allowed, err := store.Hit(ctx, "rl:vote:user:u1", time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(3), count)
}

func TestHitDeniedNotRecorded(t *testing.T) {
	store, clock := setupStore(t)
	ctx := context.Background()
	key := "rl:chat-message:user:u1"

	_, _, allowed, err := store.Hit(ctx, key, time.Second, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	// Repeated denials must not stretch the window.
	for i := 0; i < 5; i++ {
		clock.Advance(100 * time.Millisecond)
		_, _, allowed, err = store.Hit(ctx, key, time.Second, 1)
		require.NoError(t, err)
		require.False(t, allowed, "denial %d", i+1)
	}

	// One second after the first hit it has aged out, no matter how many
	// denials happened in between.
	clock.Advance(500 * time.Millisecond)
	_, _, allowed, err = store.Hit(ctx, key, time.Second, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestHitReplenishesOneSlot(t *testing.T) {
	store, clock := setupStore(t)
	ctx := context.Background()
	key := "rl:comment:user:u1"

	start := clock.current

	_, _, allowed, err := store.Hit(ctx, key, time.Second, 2)
	require.NoError(t, err)
	require.True(t, allowed)

	clock.Advance(400 * time.Millisecond)
	_, _, allowed, err = store.Hit(ctx, key, time.Second, 2)
	require.NoError(t, err)
	require.True(t, allowed)

	clock.Advance(100 * time.Millisecond)
	_, oldest, allowed, err := store.Hit(ctx, key, time.Second, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	assert.Equal(t, start.UnixMilli(), oldest.UnixMilli())

	// Once the oldest hit ages out, exactly one slot comes back.
	clock.Advance(501 * time.Millisecond)
	count, oldest, allowed, err := store.Hit(ctx, key, time.Second, 2)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, start.Add(400*time.Millisecond).UnixMilli(), oldest.UnixMilli())

	_, _, allowed, err = store.Hit(ctx, key, time.Second, 2)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestHitDistinctKeysIndependent(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, _, allowed, err := store.Hit(ctx, "rl:chat-message:user:u1", time.Second, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	// Same identifier under a different action prefix has its own window.
	_, _, allowed, err = store.Hit(ctx, "rl:reaction:user:u1", time.Second, 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	// As does a different identifier under the same action.
	_, _, allowed, err = store.Hit(ctx, "rl:chat-message:user:u2", time.Second, 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	_, _, allowed, err = store.Hit(ctx, "rl:chat-message:user:u1", time.Second, 1)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestHitFirstHitOldestIsNow(t *testing.T) {
	store, clock := setupStore(t)

	count, oldest, allowed, err := store.Hit(context.Background(), "rl:rsvp:user:u1", time.Minute, 5)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, clock.current.UnixMilli(), oldest.UnixMilli())
}

func TestHitZeroLimitAlwaysDenies(t *testing.T) {
	store, _ := setupStore(t)

	count, _, allowed, err := store.Hit(context.Background(), "rl:frozen:user:u1", time.Minute, 0)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, count)
}

func TestHitStoreError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisStore(client)

	mr.Close()

	_, _, _, err = store.Hit(context.Background(), "rl:vote:user:u1", time.Minute, 3)
	require.Error(t, err)
}
