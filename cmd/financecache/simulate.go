package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentuity/financecache/cache"
	"github.com/agentuity/financecache/env"
	"github.com/agentuity/financecache/finance"
	"github.com/agentuity/financecache/logger"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// ledger stands in for the relational store the cache sits in front of.
type ledger struct {
	mu       sync.Mutex
	balances map[finance.AccountID]finance.Money
	loans    map[finance.UserID]finance.Money
	reads    atomic.Int64
}

func newLedger(accounts, users int) *ledger {
	l := &ledger{
		balances: make(map[finance.AccountID]finance.Money, accounts),
		loans:    make(map[finance.UserID]finance.Money, users),
	}
	for i := 1; i <= accounts; i++ {
		l.balances[finance.AccountID(i)] = finance.NewMoney(float64(i%997) * 10.25)
	}
	for i := 1; i <= users; i++ {
		l.loans[finance.UserID(i)] = finance.NewMoney(float64(i%389) * 125)
	}
	return l
}

func (l *ledger) balance(id finance.AccountID) (finance.Money, bool, error) {
	l.reads.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.balances[id]
	return v, ok, nil
}

func (l *ledger) outstandingLoans(id finance.UserID) (finance.Money, bool, error) {
	l.reads.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.loans[id]
	return v, ok, nil
}

func (l *ledger) transfer(id finance.AccountID, amount finance.Money) {
	l.mu.Lock()
	l.balances[id] += amount
	l.mu.Unlock()
}

func (l *ledger) repay(id finance.UserID, amount finance.Money) {
	l.mu.Lock()
	l.loans[id] -= amount
	l.mu.Unlock()
}

type simulation struct {
	cache    *finance.FinanceCache
	ledger   *ledger
	balances *cache.Loader[finance.AccountID, finance.Money]
	loans    *cache.Loader[finance.UserID, finance.Money]
	logger   logger.Logger
	accounts int
	users    int
	notFound atomic.Int64
}

func (s *simulation) worker(ctx context.Context, rng *rand.Rand, ops int) error {
	for i := 0; i < ops; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		accountID := finance.AccountID(rng.IntN(s.accounts) + 1)
		userID := finance.UserID(rng.IntN(s.users) + 1)
		switch r := rng.IntN(100); {
		case r < 60:
			if _, _, err := s.balances.Load(ctx, accountID, func(ctx context.Context) (finance.Money, bool, error) {
				return s.ledger.balance(accountID)
			}); err != nil {
				return err
			}
		case r < 75:
			s.ledger.transfer(accountID, finance.NewMoney(float64(rng.IntN(500))))
			s.invalidated(s.cache.InvalidateAccountBalance(accountID))
		case r < 95:
			if _, _, err := s.loans.Load(ctx, userID, func(ctx context.Context) (finance.Money, bool, error) {
				return s.ledger.outstandingLoans(userID)
			}); err != nil {
				return err
			}
		default:
			s.ledger.repay(userID, finance.NewMoney(float64(rng.IntN(100))))
			s.invalidated(s.cache.InvalidateUserOutstandingLoans(userID))
		}
	}
	return nil
}

// invalidated treats a missing entry as informational; the value was already
// absent or expired.
func (s *simulation) invalidated(err error) {
	if errors.Is(err, cache.ErrNotFound) {
		s.notFound.Add(1)
		s.logger.Debug("%s", err)
	}
}

var (
	tableBorderColor = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#AAAAAA"}
	tableBorderStyle = lipgloss.NewStyle().Foreground(tableBorderColor)
)

func statsTable(stats []cache.Stats) string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Name,
			strconv.Itoa(s.Size),
			strconv.FormatUint(s.Hits, 10),
			strconv.FormatUint(s.Misses, 10),
			fmt.Sprintf("%.1f%%", s.HitRatio()*100),
			strconv.FormatUint(s.Sets, 10),
			strconv.FormatUint(s.Evictions, 10),
			strconv.FormatUint(s.Expirations, 10),
			strconv.FormatUint(s.Invalidations, 10),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers("dataset", "size", "hits", "misses", "hit ratio", "sets", "evictions", "expirations", "invalidations").
		Rows(rows...).
		String()
}

func newSimulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a concurrent read/update workload against the caches and print their stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workers, _ := cmd.Flags().GetInt("workers")
			ops, _ := cmd.Flags().GetInt("ops")
			accounts, _ := cmd.Flags().GetInt("accounts")
			users, _ := cmd.Flags().GetInt("users")
			seed, _ := cmd.Flags().GetUint64("seed")
			if workers < 1 || ops < 1 || accounts < 1 || users < 1 {
				return errors.New("workers, ops, accounts and users must all be positive")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := logger.WithKV(env.NewLogger(cmd), "run", uuid.NewString())

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			fc, err := finance.New(ctx, cfg, cache.WithLogger(log))
			if err != nil {
				return err
			}
			defer fc.Close()

			sim := &simulation{
				cache:    fc,
				ledger:   newLedger(accounts, users),
				balances: cache.NewLoader(fc.AccountBalances()),
				loans:    cache.NewLoader(fc.UserOutstandingLoans()),
				logger:   log,
				accounts: accounts,
				users:    users,
			}

			log.Info("simulating %d operations with %d workers", ops, workers)
			started := time.Now()
			g, gctx := errgroup.WithContext(ctx)
			for w := 0; w < workers; w++ {
				share := ops / workers
				if w < ops%workers {
					share++
				}
				rng := rand.New(rand.NewPCG(seed, uint64(w)))
				g.Go(func() error {
					return sim.worker(gctx, rng, share)
				})
			}
			if err := g.Wait(); err != nil {
				return errors.Wrap(err, "simulation failed")
			}
			elapsed := time.Since(started)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, statsTable(fc.Stats()))
			fmt.Fprintf(out, "backing store reads: %d, invalidations of absent entries: %d, elapsed: %s\n",
				sim.ledger.reads.Load(), sim.notFound.Load(), elapsed.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().Int("workers", 8, "number of concurrent callers")
	cmd.Flags().Int("ops", 100_000, "total number of operations")
	cmd.Flags().Int("accounts", 10_000, "number of distinct account ids")
	cmd.Flags().Int("users", 2_000, "number of distinct user ids")
	cmd.Flags().Uint64("seed", 1, "random seed")
	return cmd
}
