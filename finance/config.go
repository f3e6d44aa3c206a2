package finance

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes strings such as "30m",
// "12h" or "1d" in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return str2duration.String(time.Duration(d)), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := str2duration.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// DatasetConfig sizes one of the cached datasets.
type DatasetConfig struct {
	MaxCapacity int      `yaml:"max_capacity"`
	TimeToLive  Duration `yaml:"time_to_live"`
	TimeToIdle  Duration `yaml:"time_to_idle"`
}

func (d DatasetConfig) validate(name string) error {
	if d.MaxCapacity < 1 {
		return errors.Newf("%s: max_capacity must be at least 1, got %d", name, d.MaxCapacity)
	}
	if d.TimeToLive <= 0 {
		return errors.Newf("%s: time_to_live must be positive", name)
	}
	if d.TimeToIdle <= 0 {
		return errors.Newf("%s: time_to_idle must be positive", name)
	}
	return nil
}

// Config holds the settings of every dataset in a FinanceCache.
type Config struct {
	AccountBalance       DatasetConfig `yaml:"account_balance"`
	UserOutstandingLoans DatasetConfig `yaml:"user_outstanding_loans"`
	// ExpiryCheck is the background sweep interval; zero disables the sweep.
	ExpiryCheck Duration `yaml:"expiry_check"`
	Shards      int      `yaml:"shards"`
}

// DefaultConfig returns the standard sizing: balances change often and are
// kept briefly in a larger working set, loan totals change rarely and are kept
// longer in a smaller one.
func DefaultConfig() Config {
	return Config{
		AccountBalance: DatasetConfig{
			MaxCapacity: 5000,
			TimeToLive:  Duration(time.Hour),
			TimeToIdle:  Duration(30 * time.Minute),
		},
		UserOutstandingLoans: DatasetConfig{
			MaxCapacity: 1000,
			TimeToLive:  Duration(24 * time.Hour),
			TimeToIdle:  Duration(12 * time.Hour),
		},
		ExpiryCheck: Duration(time.Minute),
		Shards:      16,
	}
}

// Validate reports the first out of range setting.
func (c Config) Validate() error {
	if err := c.AccountBalance.validate(AccountBalanceDataset); err != nil {
		return err
	}
	if err := c.UserOutstandingLoans.validate(UserOutstandingLoansDataset); err != nil {
		return err
	}
	if c.ExpiryCheck < 0 {
		return errors.New("expiry_check must not be negative")
	}
	if c.Shards < 1 {
		return errors.Newf("shards must be at least 1, got %d", c.Shards)
	}
	return nil
}

// ParseConfig reads YAML from buf on top of DefaultConfig, so a document only
// needs the settings it changes.
func ParseConfig(buf []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "error parsing cache config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads the YAML file at path. An empty path yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "error reading cache config %s", path)
	}
	return ParseConfig(buf)
}
