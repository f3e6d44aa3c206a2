// Package cache provides a bounded, process-local cache whose entries expire
// on two independent clocks, plus a cache-aside helper for callers that
// recompute values on a miss.
//
// # ExpiringCache
//
// The [ExpiringCache] interface defines the operations [ExpiringCache.Get],
// [ExpiringCache.Set] and [ExpiringCache.Invalidate] together with
// [ExpiringCache.Len], [ExpiringCache.Stats] and [ExpiringCache.Close].
// [Bounded] is the one implementation.
//
// # Expiry
//
// Every entry records when it was set and when it was last read. An entry is
// live while both of these hold:
//
//	now - insertedAt     < time to live  (WithTimeToLive)
//	now - lastAccessedAt < time to idle  (WithTimeToIdle)
//
// A successful [Bounded.Get] moves lastAccessedAt forward; [Bounded.Set]
// resets both timestamps, so an overwrite is a fresh entry. Expiry is checked
// at access time and a dead entry found by Get is removed on the spot. A
// background goroutine additionally sweeps dead entries every
// [WithExpiryCheck] interval; passing zero disables it without changing what
// callers observe.
//
// # Capacity
//
// The cache never holds more than [WithMaxCapacity] entries once a Set has
// returned. When inserting a new key overflows the limit, dead entries are
// reclaimed first. If that is not enough, the entry with the oldest
// lastAccessedAt is evicted, ties going to the oldest insertion.
//
// # Invalidation
//
// [Bounded.Invalidate] is strict: it returns a [*NotFoundError] (matching
// [ErrNotFound] with errors.Is) when there is no live entry for the key.
// An entry that is stored but already expired counts as absent. Callers
// that only want the entry gone can treat the error as informational.
//
// # Concurrency
//
// The key space is split over [WithShards] partitions chosen by an xxhash of
// the key, each guarded by its own mutex, so operations on keys in different
// partitions do not wait for each other. All operations on one key go through
// the same mutex and are linearizable. Eviction inspects partitions one at a
// time and never holds two partition locks at once.
//
// # Cache-aside
//
// [Exec] checks the cache and, on a miss, calls an [Invoker] and stores what
// it found:
//
//	found, balance, err := cache.Exec(ctx, balances, accountID,
//	    func(ctx context.Context) (finance.Money, bool, error) {
//	        return store.AccountBalance(ctx, accountID)
//	    },
//	)
//
// [Loader] wraps the same logic with golang.org/x/sync/singleflight so that
// concurrent misses on one key trigger a single invocation.
package cache
