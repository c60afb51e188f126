package decisionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"evcore/internal/types"
)

// 中文说明：
// DecisionLogStore 把每次评估的完整结果落到 SQLite，方便排查与可视化。
// 写入失败不应阻断评估主流程，由调用方决定是否忽略错误。

type decisionModel struct {
	ID           uint           `gorm:"primaryKey;autoIncrement"`
	TraceID      string         `gorm:"column:trace_id;size:64;index"`
	Symbol       string         `gorm:"column:symbol;size:32;index"`
	Action       string         `gorm:"column:action;size:24"`
	EV           float64        `gorm:"column:ev"`
	Confidence   float64        `gorm:"column:confidence"`
	Reasoning    string         `gorm:"column:reasoning;type:TEXT"`
	Candidates   datatypes.JSON `gorm:"column:candidates_json;type:TEXT"`
	Stop         datatypes.JSON `gorm:"column:stop_json;type:TEXT"`
	Probability  datatypes.JSON `gorm:"column:probability_json;type:TEXT"`
	SnapshotJSON datatypes.JSON `gorm:"column:snapshot_json;type:TEXT"`
	GeneratedAt  time.Time      `gorm:"column:generated_at;index"`
	CreatedAt    time.Time
}

func (decisionModel) TableName() string { return "decision_logs" }

// Record 查询接口返回的决策记录。
type Record struct {
	ID          uint                      `json:"id"`
	TraceID     string                    `json:"trace_id"`
	Symbol      string                    `json:"symbol"`
	Action      types.Action              `json:"action"`
	EV          float64                   `json:"ev"`
	Confidence  float64                   `json:"confidence"`
	Reasoning   string                    `json:"reasoning"`
	Candidates  []types.ActionCandidate   `json:"candidates,omitempty"`
	Stop        *types.DynamicStop        `json:"stop,omitempty"`
	Probability types.ProbabilityEstimate `json:"probability"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// DecisionLogStore Gorm + SQLite 决策日志。
type DecisionLogStore struct {
	db *gorm.DB
}

func New(path string) (*DecisionLogStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("decisionlog: 日志路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("decisionlog: create dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("decisionlog: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&decisionModel{}); err != nil {
		return nil, fmt.Errorf("decisionlog: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：读多写少，留少量并行度给 HTTP 查询。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &DecisionLogStore{db: db}, nil
}

// Append 追加一条决策记录；rawSnapshot 可为 nil。
func (s *DecisionLogStore) Append(ctx context.Context, dec *types.Decision, rawSnapshot []byte) error {
	if s == nil || dec == nil {
		return nil
	}
	model := decisionModel{
		TraceID:     dec.TraceID,
		Symbol:      dec.Symbol,
		Action:      string(dec.Action),
		EV:          dec.EV,
		Confidence:  dec.Confidence,
		Reasoning:   dec.Reasoning,
		GeneratedAt: dec.GeneratedAt,
	}
	if len(dec.Candidates) > 0 {
		if raw, err := json.Marshal(dec.Candidates); err == nil {
			model.Candidates = datatypes.JSON(raw)
		}
	}
	if raw, err := json.Marshal(dec.Stop); err == nil {
		model.Stop = datatypes.JSON(raw)
	}
	if raw, err := json.Marshal(dec.Probability); err == nil {
		model.Probability = datatypes.JSON(raw)
	}
	if len(rawSnapshot) > 0 && json.Valid(rawSnapshot) {
		model.SnapshotJSON = datatypes.JSON(rawSnapshot)
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// Recent 按时间倒序返回记录；symbol 为空时不过滤。
func (s *DecisionLogStore) Recent(ctx context.Context, symbol string, limit int) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Model(&decisionModel{}).Order("generated_at DESC").Limit(limit)
	if symbol = types.NormalizeSymbol(symbol); symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	var models []decisionModel
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("decisionlog: query: %w", err)
	}
	out := make([]Record, 0, len(models))
	for i := range models {
		out = append(out, toRecord(&models[i]))
	}
	return out, nil
}

// Snapshot 返回某条记录落库时的原始快照 JSON。
func (s *DecisionLogStore) Snapshot(ctx context.Context, traceID string) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	var model decisionModel
	err := s.db.WithContext(ctx).Where("trace_id = ?", traceID).First(&model).Error
	if err != nil {
		return nil, fmt.Errorf("decisionlog: snapshot %s: %w", traceID, err)
	}
	return []byte(model.SnapshotJSON), nil
}

func (s *DecisionLogStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(m *decisionModel) Record {
	rec := Record{
		ID:          m.ID,
		TraceID:     m.TraceID,
		Symbol:      m.Symbol,
		Action:      types.Action(m.Action),
		EV:          m.EV,
		Confidence:  m.Confidence,
		Reasoning:   m.Reasoning,
		GeneratedAt: m.GeneratedAt,
	}
	if len(m.Candidates) > 0 {
		_ = json.Unmarshal(m.Candidates, &rec.Candidates)
	}
	if len(m.Stop) > 0 {
		stop := &types.DynamicStop{}
		if json.Unmarshal(m.Stop, stop) == nil {
			rec.Stop = stop
		}
	}
	if len(m.Probability) > 0 {
		_ = json.Unmarshal(m.Probability, &rec.Probability)
	}
	return rec
}
