// Package gormstore implements store.Store on Gorm + SQLite.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"unitrader/internal/exchange"
	"unitrader/internal/store"
	storemodel "unitrader/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type positionModel = storemodel.PositionModel
type breakerStateModel = storemodel.BreakerStateModel

type GormStore struct {
	db *gorm.DB
}

// New opens (or creates) the SQLite database at path and migrates the
// schema. WAL mode keeps the monitor loop and decision cycle from
// serializing on every read.
func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&positionModel{}, &breakerStateModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ store.Store = (*GormStore)(nil)

func (s *GormStore) CreatePosition(ctx context.Context, p *store.Position) error {
	m, err := toModel(p)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormStore) UpdatePosition(ctx context.Context, p *store.Position) error {
	m, err := toModel(p)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&positionModel{}).Where("id = ?", m.ID).Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	// Updates skips zero values; closure fields that may legitimately be
	// zero are written explicitly.
	return s.db.WithContext(ctx).Model(&positionModel{}).Where("id = ?", m.ID).
		UpdateColumns(map[string]any{
			"needs_intervention": m.NeedsIntervention,
			"pnl":                m.PnL,
			"pnl_percent":        m.PnLPercent,
			"exit_price":         m.ExitPrice,
			"closed_at":          m.ClosedAtUnix,
		}).Error
}

func (s *GormStore) GetPosition(ctx context.Context, id string) (*store.Position, error) {
	var m positionModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p := fromModel(&m)
	return &p, nil
}

func (s *GormStore) OpenPositions(ctx context.Context, accountID string) ([]store.Position, error) {
	var models []positionModel
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, string(store.PositionOpen)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromModels(models), nil
}

func (s *GormStore) ClosedSince(ctx context.Context, accountID string, since time.Time) ([]store.Position, error) {
	var models []positionModel
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND status = ? AND closed_at >= ?",
			accountID, string(store.PositionClosed), since.UTC().Unix()).
		Order("closed_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromModels(models), nil
}

func (s *GormStore) CountCreatedSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&positionModel{}).
		Where("account_id = ? AND created_at >= ?", accountID, since.UTC().Unix()).
		Count(&count).Error
	return int(count), err
}

func (s *GormStore) TradeStats(ctx context.Context, accountID, symbol, trend string, lookback int) (store.TradeStats, error) {
	if lookback <= 0 {
		lookback = 50
	}
	var models []positionModel
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND symbol = ? AND trend = ? AND status = ?",
			accountID, symbol, trend, string(store.PositionClosed)).
		Order("closed_at DESC").
		Limit(lookback).
		Find(&models).Error
	if err != nil {
		return store.TradeStats{}, err
	}
	stats := store.TradeStats{Count: len(models)}
	if stats.Count == 0 {
		return stats, nil
	}
	var wins, losses int
	var winPct, lossPct float64
	for _, m := range models {
		if m.PnL > 0 {
			wins++
			winPct += m.PnLPercent
		} else {
			losses++
			lossPct += m.PnLPercent
		}
	}
	stats.WinRate = float64(wins) / float64(stats.Count) * 100
	if wins > 0 {
		stats.AvgWinPct = winPct / float64(wins)
	}
	if losses > 0 {
		stats.AvgLossPct = lossPct / float64(losses)
	}
	return stats, nil
}

func (s *GormStore) BreakerState(ctx context.Context, accountID string) (*store.BreakerRecord, error) {
	var m breakerStateModel
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &store.BreakerRecord{
		AccountID:   m.AccountID,
		Flag:        m.Flag,
		ActivatedAt: time.Unix(m.ActivatedAtUnix, 0).UTC(),
		Cooldown:    time.Duration(m.CooldownSeconds) * time.Second,
		UpdatedAt:   time.Unix(m.UpdatedAtUnix, 0).UTC(),
	}, nil
}

func (s *GormStore) SaveBreakerState(ctx context.Context, rec *store.BreakerRecord) error {
	m := breakerStateModel{
		AccountID:       rec.AccountID,
		Flag:            rec.Flag,
		ActivatedAtUnix: rec.ActivatedAt.UTC().Unix(),
		CooldownSeconds: int64(rec.Cooldown / time.Second),
		UpdatedAtUnix:   time.Now().UTC().Unix(),
	}
	return s.db.WithContext(ctx).Save(&m).Error
}

// positionMeta is the JSON side-channel for context that has no column of
// its own.
type positionMeta struct {
	Rationale string `json:"rationale,omitempty"`
}

func toModel(p *store.Position) (*positionModel, error) {
	meta, err := json.Marshal(positionMeta{Rationale: p.Rationale})
	if err != nil {
		return nil, err
	}
	m := &positionModel{
		ID:                p.ID,
		AccountID:         p.AccountID,
		Symbol:            p.Symbol,
		Side:              string(p.Side),
		Quantity:          p.Quantity,
		EntryPrice:        p.EntryPrice,
		StopLoss:          p.StopLoss,
		TakeProfit:        p.TakeProfit,
		Confidence:        p.Confidence,
		Trend:             p.Trend,
		Status:            string(p.Status),
		NeedsIntervention: p.NeedsIntervention,
		EntryOrderID:      p.EntryOrderID,
		StopOrderID:       p.StopOrderID,
		TargetOrderID:     p.TargetOrderID,
		ExecutionMS:       p.ExecutionMS,
		ExitPrice:         p.ExitPrice,
		PnL:               p.PnL,
		PnLPercent:        p.PnLPercent,
		CloseReason:       string(p.CloseReason),
		Meta:              datatypes.JSON(meta),
		CreatedAtUnix:     p.CreatedAt.UTC().Unix(),
	}
	if !p.ClosedAt.IsZero() {
		m.ClosedAtUnix = p.ClosedAt.UTC().Unix()
	}
	return m, nil
}

func fromModel(m *positionModel) store.Position {
	var meta positionMeta
	_ = json.Unmarshal(m.Meta, &meta)
	p := store.Position{
		ID:                m.ID,
		AccountID:         m.AccountID,
		Symbol:            m.Symbol,
		Side:              exchange.Side(m.Side),
		Quantity:          m.Quantity,
		EntryPrice:        m.EntryPrice,
		StopLoss:          m.StopLoss,
		TakeProfit:        m.TakeProfit,
		Confidence:        m.Confidence,
		Trend:             m.Trend,
		Rationale:         meta.Rationale,
		Status:            store.PositionStatus(m.Status),
		NeedsIntervention: m.NeedsIntervention,
		EntryOrderID:      m.EntryOrderID,
		StopOrderID:       m.StopOrderID,
		TargetOrderID:     m.TargetOrderID,
		ExecutionMS:       m.ExecutionMS,
		ExitPrice:         m.ExitPrice,
		PnL:               m.PnL,
		PnLPercent:        m.PnLPercent,
		CloseReason:       store.CloseReason(m.CloseReason),
		CreatedAt:         time.Unix(m.CreatedAtUnix, 0).UTC(),
	}
	if m.ClosedAtUnix > 0 {
		p.ClosedAt = time.Unix(m.ClosedAtUnix, 0).UTC()
	}
	return p
}

func fromModels(models []positionModel) []store.Position {
	out := make([]store.Position, 0, len(models))
	for i := range models {
		out = append(out, fromModel(&models[i]))
	}
	return out
}
