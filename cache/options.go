package cache

import (
	"time"

	"github.com/agentuity/financecache/logger"
	"github.com/cockroachdb/errors"
)

// DefaultMaxCapacity is the entry limit used when WithMaxCapacity is not given.
const DefaultMaxCapacity = 1000

// DefaultTimeToLive is the TTL used when WithTimeToLive is not given.
const DefaultTimeToLive = 5 * time.Minute

// DefaultTimeToIdle is the TTI used when WithTimeToIdle is not given.
const DefaultTimeToIdle = 5 * time.Minute

// DefaultShards is the number of independently locked partitions of the key space.
const DefaultShards = 16

// config holds the resolved configuration for a Bounded cache.
type config struct {
	maxCapacity int
	timeToLive  time.Duration
	timeToIdle  time.Duration
	expiryCheck time.Duration
	shards      int
	name        string
	keyName     string
	logger      logger.Logger
	now         func() time.Time
}

// Option configures a Bounded cache.
type Option func(*config)

func defaultConfig() config {
	return config{
		maxCapacity: DefaultMaxCapacity,
		timeToLive:  DefaultTimeToLive,
		timeToIdle:  DefaultTimeToIdle,
		expiryCheck: time.Minute,
		shards:      DefaultShards,
		name:        "cache",
		keyName:     "key",
		logger:      logger.NewConsoleLogger(logger.LevelNone),
		now:         time.Now,
	}
}

func applyOptions(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	if c.maxCapacity < 1 {
		return errors.Wrapf(ErrInvalidConfig, "max capacity must be at least 1, got %d", c.maxCapacity)
	}
	if c.timeToLive <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "time to live must be positive, got %s", c.timeToLive)
	}
	if c.timeToIdle <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "time to idle must be positive, got %s", c.timeToIdle)
	}
	if c.shards < 1 {
		return errors.Wrapf(ErrInvalidConfig, "shard count must be at least 1, got %d", c.shards)
	}
	if c.now == nil {
		return errors.Wrap(ErrInvalidConfig, "clock must not be nil")
	}
	return nil
}

// WithMaxCapacity sets the maximum number of live entries. Defaults to DefaultMaxCapacity.
func WithMaxCapacity(n int) Option {
	return func(c *config) { c.maxCapacity = n }
}

// WithTimeToLive sets how long an entry stays live after it was set.
func WithTimeToLive(d time.Duration) Option {
	return func(c *config) { c.timeToLive = d }
}

// WithTimeToIdle sets how long an entry stays live without being read.
func WithTimeToIdle(d time.Duration) Option {
	return func(c *config) { c.timeToIdle = d }
}

// WithExpiryCheck sets the interval for background removal of dead entries.
// Zero or a negative value disables the background sweep; expiry is then
// enforced only at access time. Defaults to 1 minute.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *config) { c.expiryCheck = d }
}

// WithShards sets the number of lock partitions. Defaults to DefaultShards.
func WithShards(n int) Option {
	return func(c *config) { c.shards = n }
}

// WithName sets the dataset name reported in errors, stats and logs.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithKeyName sets the label used for the key in NotFoundError messages,
// e.g. "account_id".
func WithKeyName(name string) Option {
	return func(c *config) { c.keyName = name }
}

// WithLogger sets the logger. Defaults to a logger with all levels disabled.
func WithLogger(log logger.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}
