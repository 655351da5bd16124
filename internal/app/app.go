// Package app wires configuration, storage, venues and the per-account
// loops together and runs them until shutdown.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"unitrader/internal/advisory"
	"unitrader/internal/config"
	"unitrader/internal/engine"
	"unitrader/internal/exchange"
	"unitrader/internal/logger"
	"unitrader/internal/monitor"
	"unitrader/internal/notify"
	"unitrader/internal/pkg/retry"
	"unitrader/internal/scheduler"
	"unitrader/internal/store"
	"unitrader/internal/store/gormstore"
)

// App owns the assembled runtime: one store, one notifier chain, one oracle
// client, and a decision cycle plus monitor per configured account.
type App struct {
	cfg      *config.Config
	watcher  *config.Watcher
	store    store.Store
	accounts []*accountRuntime
}

type accountRuntime struct {
	id      string
	cycle   *engine.Cycle
	monitor *monitor.Monitor
}

// New builds the application from a started config watcher.
func New(watcher *config.Watcher) (*App, error) {
	cfg := watcher.Current()
	logger.SetLevel(cfg.App.LogLevel)

	st, err := gormstore.New(cfg.App.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	notifier := buildNotifier(cfg.Notify)
	locks := engine.NewLockRegistry()
	limits := watcher.Limits()

	oracle := advisory.NewHTTPOracle(cfg.Oracle.APIURL, cfg.Oracle.APIKey, cfg.Oracle.Model, cfg.Oracle.Timeout())
	advisor := advisory.NewClient(oracle, retry.DefaultPolicy(advisory.IsRetryable))
	adjuster := advisory.NewAdjuster(st, advisory.AdjusterConfig{
		Lookback:   cfg.Engine.PersonalizeLookback,
		MinSamples: cfg.Engine.PersonalizeMinSamples,
	})

	a := &App{cfg: cfg, watcher: watcher, store: st}
	for _, acct := range cfg.Accounts {
		ex, err := exchange.New(exchange.Config{
			Venue:        acct.Venue,
			APIKey:       acct.APIKey,
			APISecret:    acct.APISecret,
			RESTBaseURL:  acct.RESTBaseURL,
			PaperBalance: acct.PaperBalance,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("account %s: %w", acct.ID, err)
		}

		executor := engine.NewExecutor(ex, st, notifier)
		cycle := engine.NewCycle(engine.CycleConfig{
			AccountID:   acct.ID,
			Symbol:      acct.Symbol,
			HistoryBars: cfg.Engine.HistoryBars,
			Sizing: engine.SizingConfig{
				StopLossPct:      cfg.Engine.StopLossPct,
				TakeProfitPct:    cfg.Engine.TakeProfitPct,
				MaxPositionPct:   cfg.Engine.MaxPositionPct,
				BalanceMarginPct: cfg.Engine.BalanceMarginPct,
			},
		}, ex, st, advisor, adjuster, executor, locks, limits)

		a.accounts = append(a.accounts, &accountRuntime{
			id:      acct.ID,
			cycle:   cycle,
			monitor: monitor.New(acct.ID, ex, st, notifier, locks, limits),
		})
		logger.Infof("app: account %s trading %s on %s", acct.ID, acct.Symbol, acct.Venue)
	}
	return a, nil
}

// Run starts both loops for every account and blocks until the context is
// cancelled or a loop fails fatally.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	group, ctx := errgroup.WithContext(ctx)

	for _, acct := range a.accounts {
		acct := acct
		group.Go(func() error {
			r := scheduler.NewRunner("decision:"+acct.id, a.cfg.Engine.DecisionInterval(), acct.cycle.Run)
			return r.Run(ctx)
		})
		group.Go(func() error {
			r := scheduler.NewRunner("monitor:"+acct.id, a.cfg.Engine.MonitorInterval(), acct.monitor.Tick)
			return r.Run(ctx)
		})
	}
	return group.Wait()
}

// CloseManually closes one position by ID, routed to the owning account's
// monitor so the close takes the account lock.
func (a *App) CloseManually(ctx context.Context, positionID string) error {
	pos, err := a.store.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	for _, acct := range a.accounts {
		if acct.id == pos.AccountID {
			return acct.monitor.CloseManually(ctx, positionID)
		}
	}
	return fmt.Errorf("no running account %s for position %s", pos.AccountID, positionID)
}

func (a *App) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warnf("app: close store: %v", err)
	}
}

func buildNotifier(cfg config.NotifyConfig) notify.Notifier {
	sinks := notify.Multi{notify.Log{}}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	return sinks
}
