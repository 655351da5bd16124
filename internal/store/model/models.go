package model

import "gorm.io/datatypes"

type PositionModel struct {
	ID                string         `gorm:"column:id;primaryKey"`
	AccountID         string         `gorm:"column:account_id;index:idx_positions_account_status,priority:1"`
	Symbol            string         `gorm:"column:symbol;index"`
	Side              string         `gorm:"column:side"`
	Quantity          float64        `gorm:"column:quantity"`
	EntryPrice        float64        `gorm:"column:entry_price"`
	StopLoss          float64        `gorm:"column:stop_loss"`
	TakeProfit        float64        `gorm:"column:take_profit"`
	Confidence        int            `gorm:"column:confidence"`
	Trend             string         `gorm:"column:trend"`
	Status            string         `gorm:"column:status;index:idx_positions_account_status,priority:2"`
	NeedsIntervention bool           `gorm:"column:needs_intervention"`
	EntryOrderID      string         `gorm:"column:entry_order_id"`
	StopOrderID       string         `gorm:"column:stop_order_id"`
	TargetOrderID     string         `gorm:"column:target_order_id"`
	ExecutionMS       float64        `gorm:"column:execution_ms"`
	ExitPrice         float64        `gorm:"column:exit_price"`
	PnL               float64        `gorm:"column:pnl"`
	PnLPercent        float64        `gorm:"column:pnl_percent"`
	CloseReason       string         `gorm:"column:close_reason"`
	Meta              datatypes.JSON `gorm:"column:meta;type:TEXT"`
	CreatedAtUnix     int64          `gorm:"column:created_at;index"`
	ClosedAtUnix      int64          `gorm:"column:closed_at;index"`
}

func (PositionModel) TableName() string { return "positions" }

type BreakerStateModel struct {
	AccountID       string `gorm:"column:account_id;primaryKey"`
	Flag            string `gorm:"column:flag"`
	ActivatedAtUnix int64  `gorm:"column:activated_at"`
	CooldownSeconds int64  `gorm:"column:cooldown_seconds"`
	UpdatedAtUnix   int64  `gorm:"column:updated_at"`
}

func (BreakerStateModel) TableName() string { return "breaker_states" }
