package peak

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"evcore/internal/logger"
	"evcore/internal/types"
)

// FileStore 把 SYMBOL→PeakRecord 的整张表存成一个 JSON 文件。
// 启动时读一次；每次更新整体重写（单进程场景无需事务）。
// 文件损坏只告警，从空表继续。
type FileStore struct {
	mu      sync.Mutex
	path    string
	records map[string]types.PeakRecord
}

// NewFileStore 打开（或初始化）峰值文件。
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("peak filestore: path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("peak filestore: create dir failed: %w", err)
		}
	}
	s := &FileStore{path: path, records: make(map[string]types.PeakRecord)}
	s.loadBestEffort()
	return s, nil
}

func (s *FileStore) loadBestEffort() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("peak 文件读取失败，从空表开始: %v", err)
		}
		return
	}
	var records map[string]types.PeakRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		logger.Warnf("peak 文件损坏，从空表开始: %v", err)
		return
	}
	for symbol, rec := range records {
		s.records[types.NormalizeSymbol(symbol)] = rec
	}
}

// Get 实现 Repository。
func (s *FileStore) Get(_ context.Context, symbol string) (types.PeakRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[types.NormalizeSymbol(symbol)]
	if !ok {
		return types.PeakRecord{}, ErrNotFound
	}
	return rec, nil
}

// Put 写入并整体重写文件；写盘失败只告警，内存状态仍然生效。
func (s *FileStore) Put(_ context.Context, rec types.PeakRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Symbol = types.NormalizeSymbol(rec.Symbol)
	if rec.Symbol == "" {
		return fmt.Errorf("peak filestore: symbol 不能为空")
	}
	s.records[rec.Symbol] = rec
	s.flushBestEffort()
	return nil
}

// Delete 删除记录（持仓关闭时调用）。
func (s *FileStore) Delete(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, types.NormalizeSymbol(symbol))
	s.flushBestEffort()
	return nil
}

// All 返回全部记录（symbol 排序，供巡检接口使用）。
func (s *FileStore) All(_ context.Context) ([]types.PeakRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.PeakRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Close 实现 Repository（文件存储无持有句柄）。
func (s *FileStore) Close() error { return nil }

func (s *FileStore) flushBestEffort() {
	raw, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		logger.Warnf("peak 文件序列化失败: %v", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		logger.Warnf("peak 文件写入失败，仅保留内存状态: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		logger.Warnf("peak 文件替换失败，仅保留内存状态: %v", err)
	}
}
