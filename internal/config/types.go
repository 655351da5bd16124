package config

import (
	"strings"
	"time"

	"unitrader/internal/risk"
)

// Config is the full runtime configuration.
type Config struct {
	App      AppConfig       `toml:"app"`
	Oracle   OracleConfig    `toml:"oracle"`
	Engine   EngineConfig    `toml:"engine"`
	Risk     RiskConfig      `toml:"risk"`
	Notify   NotifyConfig    `toml:"notify"`
	Accounts []AccountConfig `toml:"accounts"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"` // empty logs to stdout only
	DBPath   string `toml:"db_path"`
}

// OracleConfig points at the OpenAI-compatible reasoning endpoint.
type OracleConfig struct {
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// EngineConfig holds the decision-cycle and sizing knobs shared by all
// accounts.
type EngineConfig struct {
	DecisionIntervalSeconds int     `toml:"decision_interval_seconds"`
	MonitorIntervalSeconds  int     `toml:"monitor_interval_seconds"`
	HistoryBars             int     `toml:"history_bars"`
	StopLossPct             float64 `toml:"stop_loss_pct"`
	TakeProfitPct           float64 `toml:"take_profit_pct"`
	MaxPositionPct          float64 `toml:"max_position_pct"`
	BalanceMarginPct        float64 `toml:"balance_margin_pct"`
	PersonalizeLookback     int     `toml:"personalize_lookback"`
	PersonalizeMinSamples   int     `toml:"personalize_min_samples"`
}

func (e EngineConfig) DecisionInterval() time.Duration {
	return time.Duration(e.DecisionIntervalSeconds) * time.Second
}

func (e EngineConfig) MonitorInterval() time.Duration {
	return time.Duration(e.MonitorIntervalSeconds) * time.Second
}

// RiskConfig is the hot-reloadable loss-budget section.
type RiskConfig struct {
	DailyLossPct           float64 `toml:"daily_loss_pct"`
	WeeklyLossPct          float64 `toml:"weekly_loss_pct"`
	MonthlyLossPct         float64 `toml:"monthly_loss_pct"`
	HourlyLossPct          float64 `toml:"hourly_loss_pct"`
	MaxTradesPerHour       int     `toml:"max_trades_per_hour"`
	SizeReductionFactor    float64 `toml:"size_reduction_factor"`
	BreakerCooldownSeconds int     `toml:"breaker_cooldown_seconds"`
}

// Limits converts the section into the engine's risk limits.
func (r RiskConfig) Limits() risk.Limits {
	return risk.Limits{
		DailyLossPct:        r.DailyLossPct,
		WeeklyLossPct:       r.WeeklyLossPct,
		MonthlyLossPct:      r.MonthlyLossPct,
		HourlyLossPct:       r.HourlyLossPct,
		MaxTradesPerHour:    r.MaxTradesPerHour,
		SizeReductionFactor: r.SizeReductionFactor,
		BreakerCooldown:     time.Duration(r.BreakerCooldownSeconds) * time.Second,
	}.WithDefaults()
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// AccountConfig binds one account to a venue and a traded symbol.
type AccountConfig struct {
	ID           string  `toml:"id"`
	Symbol       string  `toml:"symbol"`
	Venue        string  `toml:"venue"` // "binance" | "paper"
	APIKey       string  `toml:"api_key"`
	APISecret    string  `toml:"api_secret"`
	RESTBaseURL  string  `toml:"rest_base_url"`
	PaperBalance float64 `toml:"paper_balance"`
}

// keySet tracks which config paths the file set explicitly, so defaults
// never override a deliberate zero.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

// fieldDefault is one field's defaulting rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
