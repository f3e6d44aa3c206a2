// Package finance caches derived banking figures, account balances and user
// outstanding-loan totals, in front of the relational store.
package finance

import (
	"context"
	"time"

	"github.com/agentuity/financecache/cache"
)

const (
	AccountBalanceDataset       = "account_balance"
	UserOutstandingLoansDataset = "user_outstanding_loans"
)

// FinanceCache groups one independently sized cache per dataset. Callers only
// name the dataset and the key; capacity and expiry come from Config.
type FinanceCache struct {
	accountBalance       *cache.Bounded[AccountID, Money]
	userOutstandingLoans *cache.Bounded[UserID, Money]
}

// New builds a FinanceCache from cfg. opts are applied to both datasets after
// the settings derived from cfg, which makes them suitable for a logger or a
// test clock.
func New(ctx context.Context, cfg Config, opts ...cache.Option) (*FinanceCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	balances, err := cache.New[AccountID, Money](ctx, datasetOptions(AccountBalanceDataset, "account_id", cfg.AccountBalance, cfg, opts)...)
	if err != nil {
		return nil, err
	}
	loans, err := cache.New[UserID, Money](ctx, datasetOptions(UserOutstandingLoansDataset, "user_id", cfg.UserOutstandingLoans, cfg, opts)...)
	if err != nil {
		balances.Close()
		return nil, err
	}
	return &FinanceCache{
		accountBalance:       balances,
		userOutstandingLoans: loans,
	}, nil
}

func datasetOptions(name, keyName string, ds DatasetConfig, cfg Config, extra []cache.Option) []cache.Option {
	opts := []cache.Option{
		cache.WithName(name),
		cache.WithKeyName(keyName),
		cache.WithMaxCapacity(ds.MaxCapacity),
		cache.WithTimeToLive(time.Duration(ds.TimeToLive)),
		cache.WithTimeToIdle(time.Duration(ds.TimeToIdle)),
		cache.WithExpiryCheck(time.Duration(cfg.ExpiryCheck)),
		cache.WithShards(cfg.Shards),
	}
	return append(opts, extra...)
}

func (f *FinanceCache) GetAccountBalance(id AccountID) (Money, bool) {
	return f.accountBalance.Get(id)
}

func (f *FinanceCache) SetAccountBalance(id AccountID, balance Money) {
	f.accountBalance.Set(id, balance)
}

// InvalidateAccountBalance drops the cached balance for id. The returned
// error matches cache.ErrNotFound when nothing live was cached.
func (f *FinanceCache) InvalidateAccountBalance(id AccountID) error {
	return f.accountBalance.Invalidate(id)
}

func (f *FinanceCache) GetUserOutstandingLoans(id UserID) (Money, bool) {
	return f.userOutstandingLoans.Get(id)
}

func (f *FinanceCache) SetUserOutstandingLoans(id UserID, total Money) {
	f.userOutstandingLoans.Set(id, total)
}

// InvalidateUserOutstandingLoans drops the cached loan total for id. The
// returned error matches cache.ErrNotFound when nothing live was cached.
func (f *FinanceCache) InvalidateUserOutstandingLoans(id UserID) error {
	return f.userOutstandingLoans.Invalidate(id)
}

// AccountBalances exposes the balance dataset, e.g. for cache.Exec.
func (f *FinanceCache) AccountBalances() cache.ExpiringCache[AccountID, Money] {
	return f.accountBalance
}

// UserOutstandingLoans exposes the loan total dataset, e.g. for cache.Exec.
func (f *FinanceCache) UserOutstandingLoans() cache.ExpiringCache[UserID, Money] {
	return f.userOutstandingLoans
}

// Stats returns the counters of every dataset.
func (f *FinanceCache) Stats() []cache.Stats {
	return []cache.Stats{f.accountBalance.Stats(), f.userOutstandingLoans.Stats()}
}

// Close stops the background sweeps of both datasets.
func (f *FinanceCache) Close() error {
	f.accountBalance.Close()
	return f.userOutstandingLoans.Close()
}
