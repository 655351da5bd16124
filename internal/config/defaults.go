package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppDBPath   = "data/unitrader.db"

	defaultOracleTimeout = 60

	defaultDecisionInterval = 180
	defaultMonitorInterval  = 30
	defaultHistoryBars      = 250
	defaultStopLossPct      = 2.0
	defaultTakeProfitPct    = 6.0
	defaultMaxPositionPct   = 10.0
	defaultBalanceMarginPct = 5.0
	defaultLookback         = 50
	defaultMinSamples       = 5

	defaultDailyLossPct    = 5.0
	defaultWeeklyLossPct   = 10.0
	defaultMonthlyLossPct  = 15.0
	defaultHourlyLossPct   = 3.0
	defaultMaxTradesHour   = 20
	defaultSizeReduction   = 0.5
	defaultBreakerCooldown = 3600
	defaultAccountVenue    = "paper"
	defaultPaperBalance    = 10000.0
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Oracle.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	for i := range c.Accounts {
		c.Accounts[i].applyDefaults()
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.db_path", &a.DBPath, defaultAppDBPath),
	)
}

func (o *OracleConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("oracle.timeout_seconds", &o.TimeoutSeconds, defaultOracleTimeout),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("engine.decision_interval_seconds", &e.DecisionIntervalSeconds, defaultDecisionInterval),
		intFieldDefault("engine.monitor_interval_seconds", &e.MonitorIntervalSeconds, defaultMonitorInterval),
		intFieldDefault("engine.history_bars", &e.HistoryBars, defaultHistoryBars),
		floatFieldDefault("engine.stop_loss_pct", &e.StopLossPct, defaultStopLossPct),
		floatFieldDefault("engine.take_profit_pct", &e.TakeProfitPct, defaultTakeProfitPct),
		floatFieldDefault("engine.max_position_pct", &e.MaxPositionPct, defaultMaxPositionPct),
		floatFieldDefault("engine.balance_margin_pct", &e.BalanceMarginPct, defaultBalanceMarginPct),
		intFieldDefault("engine.personalize_lookback", &e.PersonalizeLookback, defaultLookback),
		intFieldDefault("engine.personalize_min_samples", &e.PersonalizeMinSamples, defaultMinSamples),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("risk.daily_loss_pct", &r.DailyLossPct, defaultDailyLossPct),
		floatFieldDefault("risk.weekly_loss_pct", &r.WeeklyLossPct, defaultWeeklyLossPct),
		floatFieldDefault("risk.monthly_loss_pct", &r.MonthlyLossPct, defaultMonthlyLossPct),
		floatFieldDefault("risk.hourly_loss_pct", &r.HourlyLossPct, defaultHourlyLossPct),
		intFieldDefault("risk.max_trades_per_hour", &r.MaxTradesPerHour, defaultMaxTradesHour),
		floatFieldDefault("risk.size_reduction_factor", &r.SizeReductionFactor, defaultSizeReduction),
		intFieldDefault("risk.breaker_cooldown_seconds", &r.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
}

// Account entries are list items, so per-key tracking does not apply.
func (a *AccountConfig) applyDefaults() {
	if strings.TrimSpace(a.Venue) == "" {
		a.Venue = defaultAccountVenue
	}
	a.Venue = strings.ToLower(strings.TrimSpace(a.Venue))
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
	if a.Venue == "paper" && a.PaperBalance <= 0 {
		a.PaperBalance = defaultPaperBalance
	}
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}
