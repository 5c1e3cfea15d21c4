package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeCase struct {
	store Store
	// advance moves the store's clock past d.
	advance func(d time.Duration)
}

func memoryCase(t *testing.T) storeCase {
	t.Helper()
	s := NewMemoryStore(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	return storeCase{store: s, advance: func(d time.Duration) { now = now.Add(d) }}
}

func redisCase(t *testing.T) storeCase {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return storeCase{store: NewRedisStore(rdb, "test:conv:", time.Minute), advance: mr.FastForward}
}

func allStores(t *testing.T) map[string]storeCase {
	return map[string]storeCase{"memory": memoryCase(t), "redis": redisCase(t)}
}

func TestStorePutLoadDelete(t *testing.T) {
	for name, c := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, ok, err := c.store.Load(ctx, 1)
			require.NoError(t, err)
			assert.False(t, ok)

			put, err := c.store.Put(ctx, 1, State{Step: StepAwaitingDescription, Title: "Server down"})
			require.NoError(t, err)
			assert.NotZero(t, put.Version)

			got, ok, err := c.store.Load(ctx, 1)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, StepAwaitingDescription, got.Step)
			assert.Equal(t, "Server down", got.Title)
			assert.Equal(t, put.Version, got.Version)

			// Another admin is independent.
			_, ok, err = c.store.Load(ctx, 2)
			require.NoError(t, err)
			assert.False(t, ok)

			existed, err := c.store.Delete(ctx, 1)
			require.NoError(t, err)
			assert.True(t, existed)
			existed, err = c.store.Delete(ctx, 1)
			require.NoError(t, err)
			assert.False(t, existed)
		})
	}
}

func TestStoreCompareAndSwap(t *testing.T) {
	for name, c := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := c.store.Put(ctx, 7, State{Step: StepAwaitingTitle})
			require.NoError(t, err)

			swapped, err := c.store.CompareAndSwap(ctx, 7, first.Version, &State{Step: StepAwaitingDescription, Title: "abc"})
			require.NoError(t, err)
			assert.True(t, swapped)

			// The old version is stale now.
			swapped, err = c.store.CompareAndSwap(ctx, 7, first.Version, nil)
			require.NoError(t, err)
			assert.False(t, swapped)

			cur, ok, err := c.store.Load(ctx, 7)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Greater(t, cur.Version, first.Version)

			swapped, err = c.store.CompareAndSwap(ctx, 7, cur.Version, nil)
			require.NoError(t, err)
			assert.True(t, swapped)
			_, ok, err = c.store.Load(ctx, 7)
			require.NoError(t, err)
			assert.False(t, ok)

			// A recreated state never reuses a version.
			again, err := c.store.Put(ctx, 7, State{Step: StepAwaitingTitle})
			require.NoError(t, err)
			assert.NotEqual(t, first.Version, again.Version)
			assert.NotEqual(t, cur.Version, again.Version)
		})
	}
}

func TestStoreExpiry(t *testing.T) {
	for name, c := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st, err := c.store.Put(ctx, 3, State{Step: StepAwaitingResolution, IssueID: 12})
			require.NoError(t, err)

			c.advance(2 * time.Minute)

			_, ok, err := c.store.Load(ctx, 3)
			require.NoError(t, err)
			assert.False(t, ok)
			swapped, err := c.store.CompareAndSwap(ctx, 3, st.Version, nil)
			require.NoError(t, err)
			assert.False(t, swapped)
		})
	}
}

func TestMemorySweep(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = s.Put(ctx, 1, State{Step: StepAwaitingTitle})
	now = now.Add(45 * time.Second)
	_, _ = s.Put(ctx, 2, State{Step: StepAwaitingTitle})

	assert.Equal(t, 1, s.Sweep(now.Add(30*time.Second)))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Sweep(now.Add(2*time.Minute)))
	assert.Zero(t, s.Len())
}
