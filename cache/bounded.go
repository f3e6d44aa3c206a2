package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentuity/financecache/logger"
)

// evictAttempts bounds how often a victim chosen across shards may be
// found touched by a concurrent caller before the owning shard's own
// oldest entry is taken instead.
const evictAttempts = 3

// Bounded is a capacity-bounded cache whose entries expire a fixed time after
// they were set (TTL) or after they were last read (TTI), whichever is first.
type Bounded[K comparable, V any] struct {
	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
	logger    logger.Logger
	shards    []*shard[K, V]
	size      atomic.Int64
	seq       atomic.Uint64
	counters  counters
}

var _ ExpiringCache[string, any] = (*Bounded[string, any])(nil)

// New returns a Bounded cache configured by opts. When the expiry check
// interval is positive a background goroutine removes dead entries until
// Close is called or parent is cancelled.
func New[K comparable, V any](parent context.Context, opts ...Option) (*Bounded[K, V], error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	c := &Bounded[K, V]{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: cfg.logger.WithPrefix("[" + cfg.name + "]"),
		shards: make([]*shard[K, V], cfg.shards),
	}
	for i := range c.shards {
		c.shards[i] = newShard[K, V]()
	}
	if cfg.expiryCheck > 0 {
		c.waitGroup.Add(1)
		go c.run()
	}
	return c, nil
}

func (c *Bounded[K, V]) Name() string {
	return c.cfg.name
}

func (c *Bounded[K, V]) shardFor(key K) *shard[K, V] {
	return c.shards[hashKey(key)%uint64(len(c.shards))]
}

func (c *Bounded[K, V]) dead(e *entry[K, V], now time.Time) bool {
	return now.Sub(e.insertedAt) >= c.cfg.timeToLive || now.Sub(e.lastAccessedAt) >= c.cfg.timeToIdle
}

// expire removes the dead entries of s, which must be locked.
func (c *Bounded[K, V]) expire(s *shard[K, V], now time.Time) int {
	removed := s.expire(func(e *entry[K, V]) bool { return c.dead(e, now) })
	if removed > 0 {
		c.size.Add(-int64(removed))
		c.counters.expirations.Add(uint64(removed))
	}
	return removed
}

// Get returns a copy of the value stored for key if it is live, and marks it
// as accessed. A dead entry is removed and reported as a miss.
func (c *Bounded[K, V]) Get(key K) (V, bool) {
	var zero V
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := c.cfg.now()
	e, ok := s.items[key]
	if !ok {
		c.counters.misses.Add(1)
		return zero, false
	}
	if c.dead(e, now) {
		s.remove(e)
		c.size.Add(-1)
		c.counters.expirations.Add(1)
		c.counters.misses.Add(1)
		return zero, false
	}
	e.lastAccessedAt = now
	e.seq = c.seq.Add(1)
	s.byAccess.MoveToFront(e.accessed)
	c.counters.hits.Add(1)
	return e.value, true
}

// Set stores val for key as a fresh entry. When key is new and the cache is
// over capacity, dead entries are reclaimed first and then the least recently
// accessed live entry is evicted.
func (c *Bounded[K, V]) Set(key K, val V) {
	s := c.shardFor(key)
	s.mu.Lock()
	now := c.cfg.now()
	c.counters.sets.Add(1)
	if e, ok := s.items[key]; ok {
		e.value = val
		e.insertedAt = now
		e.lastAccessedAt = now
		e.seq = c.seq.Add(1)
		s.byAccess.MoveToFront(e.accessed)
		s.byInsertion.MoveToFront(e.inserted)
		s.mu.Unlock()
		return
	}
	s.add(&entry[K, V]{
		ordering: ordering{insertedAt: now, lastAccessedAt: now, seq: c.seq.Add(1)},
		key:      key,
		value:    val,
	})
	s.mu.Unlock()
	if c.size.Add(1) > int64(c.cfg.maxCapacity) {
		c.reclaim(now, key)
	}
}

// Invalidate removes the live entry for key. It returns a *NotFoundError when
// there is none, including when the entry exists but has already expired.
func (c *Bounded[K, V]) Invalidate(key K) error {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok {
		return c.notFound(key)
	}
	dead := c.dead(e, c.cfg.now())
	s.remove(e)
	c.size.Add(-1)
	if dead {
		c.counters.expirations.Add(1)
		return c.notFound(key)
	}
	c.counters.invalidations.Add(1)
	return nil
}

func (c *Bounded[K, V]) notFound(key K) error {
	return &NotFoundError{Dataset: c.cfg.name, KeyName: c.cfg.keyName, Key: key}
}

// Len returns the number of live entries.
func (c *Bounded[K, V]) Len() int {
	now := c.cfg.now()
	var n int
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.items {
			if !c.dead(e, now) {
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// Purge removes every dead entry and returns how many were removed.
func (c *Bounded[K, V]) Purge() int {
	return c.purge(c.cfg.now())
}

func (c *Bounded[K, V]) purge(now time.Time) int {
	var removed int
	for _, s := range c.shards {
		s.mu.Lock()
		removed += c.expire(s, now)
		s.mu.Unlock()
	}
	return removed
}

// reclaim brings the cache back to capacity after an insert of skip pushed it
// over. Dead entries go first; each overflowing insert then removes at most
// one live entry. The work is proportional to the number of shards, not the
// number of entries.
func (c *Bounded[K, V]) reclaim(now time.Time, skip K) {
	for attempt := 1; ; attempt++ {
		victim, ok := c.victim(now, skip)
		if !ok || c.size.Load() <= int64(c.cfg.maxCapacity) {
			return
		}
		s := c.shards[victim.shard]
		s.mu.Lock()
		e, found := s.items[victim.key]
		if !found || e.seq != victim.seq {
			if attempt < evictAttempts {
				s.mu.Unlock()
				continue
			}
			if e = s.oldest(skip); e == nil {
				s.mu.Unlock()
				return
			}
		}
		s.remove(e)
		s.mu.Unlock()
		c.size.Add(-1)
		c.counters.evictions.Add(1)
		c.logger.Trace("evicted %v", e.key)
		return
	}
}

// victim expires the dead tails of every shard and returns the least
// recently accessed live entry left in the whole cache.
func (c *Bounded[K, V]) victim(now time.Time, skip K) (candidate[K], bool) {
	var best candidate[K]
	var found bool
	var expired int
	for i, s := range c.shards {
		s.mu.Lock()
		expired += c.expire(s, now)
		if e := s.oldest(skip); e != nil {
			if !found || e.before(best.ordering) {
				best = candidate[K]{ordering: e.ordering, shard: i, key: e.key}
				found = true
			}
		}
		s.mu.Unlock()
	}
	if expired > 0 {
		c.logger.Trace("reclaimed %d dead entries", expired)
	}
	return best, found
}

// Stats returns a snapshot of the cache counters.
func (c *Bounded[K, V]) Stats() Stats {
	return c.counters.snapshot(c.cfg.name, int(c.size.Load()))
}

// Close stops the background sweep. It is safe to call more than once.
func (c *Bounded[K, V]) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

func (c *Bounded[K, V]) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if removed := c.purge(c.cfg.now()); removed > 0 {
				c.logger.Debug("expiry sweep removed %d entries", removed)
			}
		}
	}
}
