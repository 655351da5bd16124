package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
oracle:
  model: gpt-4o-mini
accounts:
  - id: acct-1
    symbol: btcusdt
`

func TestLoad(t *testing.T) {
	t.Run("minimal config gets all defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalConfig))
		require.NoError(t, err)

		assert.Equal(t, "dev", cfg.App.Env)
		assert.Equal(t, "info", cfg.App.LogLevel)
		assert.Equal(t, 180, cfg.Engine.DecisionIntervalSeconds)
		assert.Equal(t, 30, cfg.Engine.MonitorIntervalSeconds)
		assert.Equal(t, 250, cfg.Engine.HistoryBars)
		assert.Equal(t, 2.0, cfg.Engine.StopLossPct)
		assert.Equal(t, 6.0, cfg.Engine.TakeProfitPct)
		assert.Equal(t, 5.0, cfg.Engine.BalanceMarginPct)
		assert.Equal(t, 5.0, cfg.Risk.DailyLossPct)
		assert.Equal(t, 10.0, cfg.Risk.WeeklyLossPct)
		assert.Equal(t, 15.0, cfg.Risk.MonthlyLossPct)
		assert.Equal(t, 3.0, cfg.Risk.HourlyLossPct)
		assert.Equal(t, 20, cfg.Risk.MaxTradesPerHour)
		assert.Equal(t, 60, cfg.Oracle.TimeoutSeconds)

		require.Len(t, cfg.Accounts, 1)
		acct := cfg.Accounts[0]
		assert.Equal(t, "paper", acct.Venue)
		assert.Equal(t, "BTCUSDT", acct.Symbol)
		assert.Equal(t, 10000.0, acct.PaperBalance)
	})

	t.Run("explicit values survive", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
app:
  log_level: debug
oracle:
  model: gpt-4o-mini
  timeout_seconds: 30
risk:
  daily_loss_pct: 2
  weekly_loss_pct: 4
  monthly_loss_pct: 8
engine:
  decision_interval_seconds: 60
accounts:
  - id: acct-1
    symbol: ETHUSDT
    venue: binance
    api_key: k
    api_secret: s
`))
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.App.LogLevel)
		assert.Equal(t, 30, cfg.Oracle.TimeoutSeconds)
		assert.Equal(t, 2.0, cfg.Risk.DailyLossPct)
		assert.Equal(t, 60, cfg.Engine.DecisionIntervalSeconds)
		assert.Equal(t, "binance", cfg.Accounts[0].Venue)
	})

	t.Run("missing oracle model rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
accounts:
  - id: acct-1
    symbol: BTCUSDT
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oracle.model")
	})

	t.Run("no accounts rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
oracle:
  model: gpt-4o-mini
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accounts")
	})

	t.Run("duplicate account ids rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, minimalConfig+`
  - id: acct-1
    symbol: ETHUSDT
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate account id")
	})

	t.Run("binance account without keys rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
oracle:
  model: gpt-4o-mini
accounts:
  - id: acct-1
    symbol: BTCUSDT
    venue: binance
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api_key")
	})

	t.Run("shrinking budgets rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
oracle:
  model: gpt-4o-mini
risk:
  daily_loss_pct: 10
  weekly_loss_pct: 5
accounts:
  - id: acct-1
    symbol: BTCUSDT
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "budgets")
	})

	t.Run("bad log level rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
app:
  log_level: loud
oracle:
  model: gpt-4o-mini
accounts:
  - id: acct-1
    symbol: BTCUSDT
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log_level")
	})

	t.Run("unknown file errors", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestWatcherReload(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	w, err := NewWatcher(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, w.Current().Risk.DailyLossPct)

	got := make(chan *Config, 1)
	w.Subscribe(func(cfg *Config) { got <- cfg })

	t.Run("valid edit replaces the snapshot and notifies listeners", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(minimalConfig+`
risk:
  daily_loss_pct: 3
`), 0o644))
		w.reload(path)

		assert.Equal(t, 3.0, w.Current().Risk.DailyLossPct)
		select {
		case cfg := <-got:
			assert.Equal(t, 3.0, cfg.Risk.DailyLossPct)
		case <-time.After(2 * time.Second):
			t.Fatal("listener was not notified")
		}
		assert.Equal(t, 3.0, w.Limits()().DailyLossPct)
	})

	t.Run("invalid edit keeps the previous snapshot", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`
risk:
  daily_loss_pct: 200
`), 0o644))
		w.reload(path)

		assert.Equal(t, 3.0, w.Current().Risk.DailyLossPct)
	})
}

func TestRiskConfigLimits(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	limits := cfg.Risk.Limits()
	assert.Equal(t, 5.0, limits.DailyLossPct)
	assert.Equal(t, 0.5, limits.SizeReductionFactor)
	assert.Equal(t, 20, limits.MaxTradesPerHour)
}
