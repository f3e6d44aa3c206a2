package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agentuity/financecache/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, clock *fakeClock, opts ...Option) *Bounded[int, string] {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now), WithExpiryCheck(0)}, opts...)
	c, err := New[int, string](context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetNeverSet(t *testing.T) {
	c := newTestCache(t, newFakeClock())
	val, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, "", val)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestSetGet(t *testing.T) {
	c := newTestCache(t, newFakeClock())
	c.Set(1, "one")
	val, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "one", val)

	c.Set(1, "uno")
	val, ok = c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "uno", val)
	assert.Equal(t, 1, c.Len())

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(2), stats.Sets)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 1.0, stats.HitRatio())
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(t, newFakeClock())
	c.Set(1, "one")
	assert.NoError(t, c.Invalidate(1))
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size)
	assert.Equal(t, uint64(1), c.Stats().Invalidations)
}

func TestInvalidateMissing(t *testing.T) {
	c := newTestCache(t, newFakeClock(), WithName("account_balance"), WithKeyName("account_id"))
	err := c.Invalidate(7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, 7, nf.Key)
	assert.Equal(t, "account_balance", nf.Dataset)
	assert.Equal(t, "there is no account_balance cache entry for <account_id=7> to invalidate", err.Error())
}

func TestInvalidateTwice(t *testing.T) {
	c := newTestCache(t, newFakeClock())
	c.Set(1, "one")
	assert.NoError(t, c.Invalidate(1))
	assert.ErrorIs(t, c.Invalidate(1), ErrNotFound)
	assert.ErrorIs(t, c.Invalidate(1), ErrNotFound)
}

func TestInvalidateExpired(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, WithTimeToLive(time.Minute), WithTimeToIdle(time.Minute))
	c.Set(1, "one")
	clock.Advance(time.Minute)
	assert.ErrorIs(t, c.Invalidate(1), ErrNotFound)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestTimeToLiveWinsOverRecentAccess(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, WithTimeToLive(10*time.Minute), WithTimeToIdle(4*time.Minute))
	c.Set(1, "one")
	for i := 0; i < 3; i++ {
		clock.Advance(3 * time.Minute)
		_, ok := c.Get(1)
		require.True(t, ok, "read %d should hit", i)
	}
	clock.Advance(2 * time.Minute)
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestTimeToIdle(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, WithTimeToLive(time.Hour), WithTimeToIdle(5*time.Minute))
	c.Set(1, "one")
	clock.Advance(5*time.Minute - time.Second)
	_, ok := c.Get(1)
	assert.True(t, ok)
	clock.Advance(5 * time.Minute)
	_, ok = c.Get(1)
	assert.False(t, ok)
}

func TestOverwriteResetsTimestamps(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, WithTimeToLive(10*time.Minute), WithTimeToIdle(10*time.Minute))
	c.Set(1, "one")
	clock.Advance(9 * time.Minute)
	c.Set(1, "uno")
	clock.Advance(9 * time.Minute)
	val, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "uno", val)
}

func TestGetPurgesDeadEntry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, WithTimeToLive(time.Minute))
	c.Set(1, "one")
	c.Set(2, "two")
	clock.Advance(time.Minute)
	assert.Equal(t, 2, c.Stats().Size)
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Stats().Size)
	assert.Equal(t, uint64(1), c.Stats().Expirations)
}

func TestCapacityEvictsLeastRecentlyAccessed(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, WithMaxCapacity(3), WithShards(2))
	for i := 1; i <= 3; i++ {
		c.Set(i, fmt.Sprint(i))
		clock.Advance(time.Second)
	}
	_, ok := c.Get(1)
	require.True(t, ok)
	clock.Advance(time.Second)

	c.Set(4, "4")
	assert.Equal(t, 3, c.Len())
	_, ok = c.Get(2)
	assert.False(t, ok)
	for _, k := range []int{1, 3, 4} {
		_, ok := c.Get(k)
		assert.True(t, ok, "key %d", k)
	}
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCapacityLaw(t *testing.T) {
	clock := newFakeClock()
	const capacity = 100
	c := newTestCache(t, clock, WithMaxCapacity(capacity))
	for i := 0; i <= capacity; i++ {
		c.Set(i, fmt.Sprint(i))
		clock.Advance(time.Millisecond)
	}
	assert.Equal(t, capacity, c.Len())
	assert.Equal(t, capacity, c.Stats().Size)
	_, ok := c.Get(0)
	assert.False(t, ok)
	_, ok = c.Get(capacity)
	assert.True(t, ok)
}

func TestCapacityTieBrokenByInsertion(t *testing.T) {
	c := newTestCache(t, newFakeClock(), WithMaxCapacity(3))
	c.Set(1, "1")
	c.Set(2, "2")
	c.Set(3, "3")
	c.Set(4, "4")
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 3, c.Len())
}

func TestCapacityTieOnAccessIgnoresShardLayout(t *testing.T) {
	for _, shards := range []int{1, 2, 16} {
		t.Run(fmt.Sprintf("%d shards", shards), func(t *testing.T) {
			clock := newFakeClock()
			c := newTestCache(t, clock, WithMaxCapacity(2), WithShards(shards))
			c.Set(1, "1")
			clock.Advance(time.Second)
			c.Set(2, "2")
			clock.Advance(time.Second)
			// Both reads land on the same instant, in the opposite order
			// to the inserts.
			_, ok := c.Get(2)
			require.True(t, ok)
			_, ok = c.Get(1)
			require.True(t, ok)

			c.Set(3, "3")
			assert.Equal(t, uint64(1), c.Stats().Evictions)
			_, ok = c.Get(1)
			assert.False(t, ok, "key 1 was inserted first")
			_, ok = c.Get(2)
			assert.True(t, ok)
			_, ok = c.Get(3)
			assert.True(t, ok)
		})
	}
}

func TestCapacityReclaimsExpiredButRecentlyRead(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, WithMaxCapacity(2), WithShards(1), WithTimeToLive(10*time.Minute), WithTimeToIdle(time.Hour))
	c.Set(1, "1")
	clock.Advance(5 * time.Minute)
	c.Set(2, "2")
	clock.Advance(4 * time.Minute)
	_, ok := c.Get(1)
	require.True(t, ok)
	// Key 1 is now the most recently read but past its time to live.
	clock.Advance(2 * time.Minute)
	c.Set(3, "3")

	stats := c.Stats()
	assert.Equal(t, uint64(0), stats.Evictions)
	assert.Equal(t, uint64(1), stats.Expirations)
	_, ok = c.Get(2)
	assert.True(t, ok)
	_, ok = c.Get(3)
	assert.True(t, ok)
}

func TestPurgeRemovesEveryDeadEntry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, WithMaxCapacity(100), WithShards(4), WithTimeToLive(time.Hour), WithTimeToIdle(10*time.Minute))
	for i := 0; i < 50; i++ {
		c.Set(i, fmt.Sprint(i))
		clock.Advance(time.Second)
	}
	clock.Advance(9 * time.Minute)
	for i := 0; i < 50; i += 2 {
		_, ok := c.Get(i)
		require.True(t, ok, "key %d", i)
	}
	clock.Advance(5 * time.Minute)

	assert.Equal(t, 25, c.Purge())
	assert.Equal(t, 25, c.Len())
	assert.Equal(t, 25, c.Stats().Size)
	for i := 0; i < 50; i += 2 {
		_, ok := c.Get(i)
		assert.True(t, ok, "key %d", i)
	}
}

func TestCapacityReclaimsDeadBeforeLive(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, WithMaxCapacity(3), WithTimeToLive(10*time.Minute), WithTimeToIdle(10*time.Minute))
	c.Set(1, "1")
	clock.Advance(6 * time.Minute)
	c.Set(2, "2")
	c.Set(3, "3")
	clock.Advance(5 * time.Minute)
	c.Set(4, "4")

	stats := c.Stats()
	assert.Equal(t, uint64(0), stats.Evictions)
	assert.Equal(t, uint64(1), stats.Expirations)
	for _, k := range []int{2, 3, 4} {
		_, ok := c.Get(k)
		assert.True(t, ok, "key %d", k)
	}
}

func TestOverwriteAtCapacityDoesNotEvict(t *testing.T) {
	c := newTestCache(t, newFakeClock(), WithMaxCapacity(2))
	c.Set(1, "1")
	c.Set(2, "2")
	c.Set(1, "one")
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero capacity", WithMaxCapacity(0)},
		{"zero ttl", WithTimeToLive(0)},
		{"negative tti", WithTimeToIdle(-time.Second)},
		{"zero shards", WithShards(0)},
		{"nil clock", WithClock(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New[int, string](context.Background(), tt.opt)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, c)
		})
	}
}

func TestBackgroundExpire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logger.NewTestLogger()
	c, err := New[string, string](ctx,
		WithTimeToLive(50*time.Millisecond),
		WithExpiryCheck(20*time.Millisecond),
		WithLogger(log),
	)
	require.NoError(t, err)
	defer c.Close()
	c.Set("test", "value")
	val, ok := c.Get("test")
	assert.True(t, ok)
	assert.Equal(t, "value", val)
	assert.Eventually(t, func() bool {
		return c.Stats().Size == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), c.Stats().Expirations)
}

func TestCloseIdempotent(t *testing.T) {
	c, err := New[int, int](context.Background(), WithExpiryCheck(time.Millisecond))
	require.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestConcurrentDistinctKeys(t *testing.T) {
	const workers = 16
	const keys = 200
	c, err := New[string, int](context.Background(), WithMaxCapacity(workers*keys), WithTimeToLive(time.Hour), WithTimeToIdle(time.Hour))
	require.NoError(t, err)
	defer c.Close()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				key := fmt.Sprintf("%d:%d", w, i)
				c.Set(key, i)
				val, ok := c.Get(key)
				assert.True(t, ok)
				assert.Equal(t, i, val)
				if i%2 == 0 {
					assert.NoError(t, c.Invalidate(key))
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, workers*keys/2, c.Len())
}

func TestConcurrentEvictionKeepsBound(t *testing.T) {
	const capacity = 64
	c, err := New[int, int](context.Background(), WithMaxCapacity(capacity), WithShards(4))
	require.NoError(t, err)
	defer c.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				key := w*1000 + i
				c.Set(key, i)
				c.Get(key - 1)
				if i%7 == 0 {
					_ = c.Invalidate(key - 3)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), capacity)
	assert.Equal(t, c.Len(), c.Stats().Size)
}

func TestConcurrentSameKey(t *testing.T) {
	c, err := New[int, int](context.Background())
	require.NoError(t, err)
	defer c.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Set(1, w)
				if val, ok := c.Get(1); ok {
					assert.GreaterOrEqual(t, val, 0)
					assert.Less(t, val, 8)
				}
				_ = c.Invalidate(1)
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 1)
	assert.Equal(t, c.Len(), c.Stats().Size)
}

type accountID uint32

func TestHashKeyNamedTypes(t *testing.T) {
	assert.Equal(t, hashKey(uint32(42)), hashKey(accountID(42)))
	assert.Equal(t, hashKey("abc"), hashKey("abc"))
	assert.NotEqual(t, hashKey(accountID(1)), hashKey(accountID(2)))

	type pair struct{ a, b int }
	assert.Equal(t, hashKey(pair{1, 2}), hashKey(pair{1, 2}))
}

func BenchmarkSetAtCapacity(b *testing.B) {
	c, err := New[int, int](context.Background(), WithMaxCapacity(5000), WithExpiryCheck(0))
	require.NoError(b, err)
	defer c.Close()
	for i := 0; i < 5000; i++ {
		c.Set(i, i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(5000+i, i)
	}
}
