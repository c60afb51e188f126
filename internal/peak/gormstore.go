package peak

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"evcore/internal/types"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// peakModel gorm 表结构。
type peakModel struct {
	Symbol            string    `gorm:"primaryKey;size:32"`
	PeakProfitPct     float64   `gorm:"column:peak_profit_pct"`
	PeakPrice         float64   `gorm:"column:peak_price"`
	VolumeAtPeak      float64   `gorm:"column:volume_at_peak"`
	RealizedProfitPct float64   `gorm:"column:realized_profit_pct"`
	LastUpdate        time.Time `gorm:"column:last_update"`
}

func (peakModel) TableName() string { return "peak_records" }

// GormStore 用 Gorm + SQLite 持久化峰值记录，供需要可查询历史的宿主选用。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 打开（或建表）SQLite 峰值库。
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("peak gormstore: path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&peakModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return &GormStore{db: db}, nil
}

// Get 实现 Repository。
func (s *GormStore) Get(ctx context.Context, symbol string) (types.PeakRecord, error) {
	var m peakModel
	err := s.db.WithContext(ctx).First(&m, "symbol = ?", types.NormalizeSymbol(symbol)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.PeakRecord{}, ErrNotFound
	}
	if err != nil {
		return types.PeakRecord{}, err
	}
	return fromModel(m), nil
}

// Put 实现 Repository（upsert）。
func (s *GormStore) Put(ctx context.Context, rec types.PeakRecord) error {
	rec.Symbol = types.NormalizeSymbol(rec.Symbol)
	if rec.Symbol == "" {
		return fmt.Errorf("peak gormstore: symbol 不能为空")
	}
	m := toModel(rec)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		UpdateAll: true,
	}).Create(&m).Error
}

// Delete 实现 Repository。
func (s *GormStore) Delete(ctx context.Context, symbol string) error {
	return s.db.WithContext(ctx).
		Delete(&peakModel{}, "symbol = ?", types.NormalizeSymbol(symbol)).Error
}

// All 实现 Repository。
func (s *GormStore) All(ctx context.Context) ([]types.PeakRecord, error) {
	var rows []peakModel
	if err := s.db.WithContext(ctx).Order("symbol").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.PeakRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, fromModel(m))
	}
	return out, nil
}

// Close 关闭底层连接。
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

func toModel(rec types.PeakRecord) peakModel {
	return peakModel{
		Symbol:            rec.Symbol,
		PeakProfitPct:     rec.PeakProfitPct,
		PeakPrice:         rec.PeakPrice,
		VolumeAtPeak:      rec.VolumeAtPeak,
		RealizedProfitPct: rec.RealizedProfitPct,
		LastUpdate:        rec.LastUpdate,
	}
}

func fromModel(m peakModel) types.PeakRecord {
	return types.PeakRecord{
		Symbol:            m.Symbol,
		PeakProfitPct:     m.PeakProfitPct,
		PeakPrice:         m.PeakPrice,
		VolumeAtPeak:      m.VolumeAtPeak,
		RealizedProfitPct: m.RealizedProfitPct,
		LastUpdate:        m.LastUpdate,
	}
}
