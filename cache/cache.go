package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

// ExpiringCache is a process-local key/value cache with bounded capacity and
// time based expiry.
type ExpiringCache[K comparable, V any] interface {
	// Name returns the dataset name the cache was configured with.
	Name() string
	// Get returns the value for key and true if a live entry exists. A hit
	// refreshes the entry's idle timer.
	Get(key K) (V, bool)
	// Set inserts or replaces the entry for key. It never fails.
	Set(key K, val V)
	// Invalidate removes the live entry for key, or returns a *NotFoundError.
	Invalidate(key K) error
	// Len returns the number of live entries.
	Len() int
	// Stats returns a snapshot of the cache counters.
	Stats() Stats
	// Close releases background resources.
	Close() error
}

// Stats is a point-in-time view of a cache's activity.
type Stats struct {
	Name          string `json:"name" yaml:"name"`
	Size          int    `json:"size" yaml:"size"`
	Hits          uint64 `json:"hits" yaml:"hits"`
	Misses        uint64 `json:"misses" yaml:"misses"`
	Sets          uint64 `json:"sets" yaml:"sets"`
	Evictions     uint64 `json:"evictions" yaml:"evictions"`
	Expirations   uint64 `json:"expirations" yaml:"expirations"`
	Invalidations uint64 `json:"invalidations" yaml:"invalidations"`
}

// HitRatio returns hits / (hits + misses), or 0 when there were no reads.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type counters struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	sets          atomic.Uint64
	evictions     atomic.Uint64
	expirations   atomic.Uint64
	invalidations atomic.Uint64
}

func (c *counters) snapshot(name string, size int) Stats {
	return Stats{
		Name:          name,
		Size:          size,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Sets:          c.sets.Load(),
		Evictions:     c.evictions.Load(),
		Expirations:   c.expirations.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

// Invoker is a function that produces a value of type V.
// The bool return indicates whether a value was found. Return false to signal
// "not found" without caching a zero value (e.g. sql.ErrNoRows scenarios).
type Invoker[V any] func(ctx context.Context) (V, bool, error)

var tracer = otel.Tracer("github.com/agentuity/financecache/cache")

// Exec is a cache-aside helper. It checks the cache for key first.
// On a cache hit, it returns the cached value with found=true.
// On a cache miss, it calls invoke to produce the value. If invoke returns
// found=true, the value is stored in the cache and returned with found=true.
// If invoke returns found=false, nothing is cached and found=false is returned.
// If invoke returns an error, the error is propagated and nothing is cached.
func Exec[K comparable, V any](ctx context.Context, c ExpiringCache[K, V], key K, invoke Invoker[V]) (bool, V, error) {
	ctx, span := tracer.Start(ctx, "cache.Exec")
	defer span.End()
	span.SetAttributes(attribute.String("cache.name", c.Name()))

	if val, ok := c.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return true, val, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, ok, err := invoke(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var zero V
		return false, zero, err
	}

	// Invoker said "not found", so do not cache.
	if !ok {
		var zero V
		return false, zero, nil
	}

	c.Set(key, result)
	return true, result, nil
}

// Loader wraps an ExpiringCache so that concurrent misses for the same key
// share a single invocation.
type Loader[K comparable, V any] struct {
	cache ExpiringCache[K, V]
	group singleflight.Group
}

// NewLoader returns a Loader backed by c.
func NewLoader[K comparable, V any](c ExpiringCache[K, V]) *Loader[K, V] {
	return &Loader[K, V]{cache: c}
}

type loadResult[V any] struct {
	found bool
	val   V
}

// Load behaves like Exec, except that callers missing on the same key at the
// same time wait for one invoke and all receive its result.
func (l *Loader[K, V]) Load(ctx context.Context, key K, invoke Invoker[V]) (bool, V, error) {
	res, err, _ := l.group.Do(fmt.Sprint(key), func() (any, error) {
		found, val, err := Exec(ctx, l.cache, key, invoke)
		return loadResult[V]{found, val}, err
	})
	if err != nil {
		var zero V
		return false, zero, err
	}
	r := res.(loadResult[V])
	return r.found, r.val, nil
}
