package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Oracle.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return validateAccounts(c.Accounts)
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level must be debug/info/warn/error, got %q", a.LogLevel)
	}
	if strings.TrimSpace(a.DBPath) == "" {
		return fmt.Errorf("app.db_path cannot be empty")
	}
	return nil
}

func (o *OracleConfig) validate() error {
	if strings.TrimSpace(o.Model) == "" {
		return fmt.Errorf("oracle.model cannot be empty")
	}
	if o.TimeoutSeconds <= 0 {
		return fmt.Errorf("oracle.timeout_seconds must be > 0")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.DecisionIntervalSeconds < 10 {
		return fmt.Errorf("engine.decision_interval_seconds must be >= 10")
	}
	if e.MonitorIntervalSeconds < 5 {
		return fmt.Errorf("engine.monitor_interval_seconds must be >= 5")
	}
	if e.HistoryBars < 50 || e.HistoryBars > 1000 {
		return fmt.Errorf("engine.history_bars must be in [50,1000]")
	}
	if e.StopLossPct <= 0 || e.StopLossPct >= 100 {
		return fmt.Errorf("engine.stop_loss_pct must be in (0,100)")
	}
	if e.TakeProfitPct <= e.StopLossPct {
		return fmt.Errorf("engine.take_profit_pct must exceed stop_loss_pct")
	}
	if e.MaxPositionPct <= 0 || e.MaxPositionPct > 100 {
		return fmt.Errorf("engine.max_position_pct must be in (0,100]")
	}
	if e.BalanceMarginPct <= 0 || e.BalanceMarginPct >= 100 {
		return fmt.Errorf("engine.balance_margin_pct must be in (0,100)")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	for name, v := range map[string]float64{
		"risk.daily_loss_pct":   r.DailyLossPct,
		"risk.weekly_loss_pct":  r.WeeklyLossPct,
		"risk.monthly_loss_pct": r.MonthlyLossPct,
		"risk.hourly_loss_pct":  r.HourlyLossPct,
	} {
		if v <= 0 || v > 100 {
			return fmt.Errorf("%s must be in (0,100]", name)
		}
	}
	if r.DailyLossPct > r.WeeklyLossPct || r.WeeklyLossPct > r.MonthlyLossPct {
		return fmt.Errorf("risk budgets must not shrink: daily <= weekly <= monthly")
	}
	if r.MaxTradesPerHour <= 0 {
		return fmt.Errorf("risk.max_trades_per_hour must be > 0")
	}
	if r.SizeReductionFactor <= 0 || r.SizeReductionFactor > 1 {
		return fmt.Errorf("risk.size_reduction_factor must be in (0,1]")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

func validateAccounts(accounts []AccountConfig) error {
	if len(accounts) == 0 {
		return fmt.Errorf("accounts requires at least one entry")
	}
	seen := make(map[string]bool, len(accounts))
	for i, acct := range accounts {
		if strings.TrimSpace(acct.ID) == "" {
			return fmt.Errorf("accounts[%d] missing id", i)
		}
		if seen[acct.ID] {
			return fmt.Errorf("duplicate account id: %s", acct.ID)
		}
		seen[acct.ID] = true
		if strings.TrimSpace(acct.Symbol) == "" {
			return fmt.Errorf("account %s missing symbol", acct.ID)
		}
		switch acct.Venue {
		case "paper":
		case "binance":
			if acct.APIKey == "" || acct.APISecret == "" {
				return fmt.Errorf("account %s uses binance but has no api_key/api_secret", acct.ID)
			}
		default:
			return fmt.Errorf("account %s has unsupported venue %q", acct.ID, acct.Venue)
		}
	}
	return nil
}
