package peak

import (
	"context"
	"errors"
	"sync"
	"time"

	"evcore/internal/logger"
	"evcore/internal/types"
)

// 中文说明：
// Tracker 维护每个 symbol 的浮盈峰值。仓储读写失败不会阻塞评估：
// 告警后继续用内存值。并发评估同一 symbol 时用 per-symbol 互斥防丢更新。

// Tracker 峰值追踪器。
type Tracker struct {
	repo Repository

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	cacheMu sync.RWMutex
	cache   map[string]types.PeakRecord
}

// NewTracker 构造 Tracker 并把仓储内容预热进内存。
func NewTracker(repo Repository) *Tracker {
	t := &Tracker{
		repo:  repo,
		locks: make(map[string]*sync.Mutex),
		cache: make(map[string]types.PeakRecord),
	}
	if repo != nil {
		if records, err := repo.All(context.Background()); err != nil {
			logger.Warnf("peak 仓储预热失败，从空表开始: %v", err)
		} else {
			for _, rec := range records {
				t.cache[rec.Symbol] = rec
			}
		}
	}
	return t
}

func (t *Tracker) symbolLock(symbol string) *sync.Mutex {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	mu, ok := t.locks[symbol]
	if !ok {
		mu = &sync.Mutex{}
		t.locks[symbol] = mu
	}
	return mu
}

// Observe 记录一次评估观察，返回更新后的记录。
// resetEpsilon 为判定 "发生过部分止盈" 的仓位缩减阈值（如 0.05）。
func (t *Tracker) Observe(ctx context.Context, snap *types.MarketSnapshot, resetEpsilon float64) types.PeakRecord {
	symbol := types.NormalizeSymbol(snap.Symbol)
	mu := t.symbolLock(symbol)
	mu.Lock()
	defer mu.Unlock()

	now := snap.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	profitPct := snap.ProfitPct()

	rec, ok := t.get(ctx, symbol)
	if !ok {
		rec = types.PeakRecord{
			Symbol:        symbol,
			PeakProfitPct: profitPct,
			PeakPrice:     snap.CurrentPrice,
			VolumeAtPeak:  snap.Position.Volume,
			LastUpdate:    now,
		}
		t.put(ctx, rec)
		return rec
	}

	if rec.VolumeAtPeak > 0 && snap.Position.Volume < rec.VolumeAtPeak*(1-resetEpsilon) {
		// 仓位缩减 ≥ 阈值：部分止盈发生过。按缩减比例把峰值利润记为已实现，
		// 峰值重置到当前（不累计旧峰值）。
		reduction := (rec.VolumeAtPeak - snap.Position.Volume) / rec.VolumeAtPeak
		rec.RealizedProfitPct += rec.PeakProfitPct * reduction
		rec.PeakProfitPct = profitPct
		rec.PeakPrice = snap.CurrentPrice
		rec.VolumeAtPeak = snap.Position.Volume
	} else if profitPct > rec.PeakProfitPct {
		rec.PeakProfitPct = profitPct
		rec.PeakPrice = snap.CurrentPrice
		rec.VolumeAtPeak = snap.Position.Volume
	}
	rec.LastUpdate = now
	t.put(ctx, rec)
	return rec
}

// Peek 只读取当前记录，不做更新。
func (t *Tracker) Peek(ctx context.Context, symbol string) (types.PeakRecord, bool) {
	symbol = types.NormalizeSymbol(symbol)
	mu := t.symbolLock(symbol)
	mu.Lock()
	defer mu.Unlock()
	return t.get(ctx, symbol)
}

// Forget 持仓关闭后删除记录。
func (t *Tracker) Forget(ctx context.Context, symbol string) {
	symbol = types.NormalizeSymbol(symbol)
	mu := t.symbolLock(symbol)
	mu.Lock()
	defer mu.Unlock()

	t.cacheMu.Lock()
	delete(t.cache, symbol)
	t.cacheMu.Unlock()
	if t.repo != nil {
		if err := t.repo.Delete(ctx, symbol); err != nil {
			logger.Warnf("peak 记录删除失败 symbol=%s: %v", symbol, err)
		}
	}
}

// All 返回全部记录（内存视图）。
func (t *Tracker) All() []types.PeakRecord {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	out := make([]types.PeakRecord, 0, len(t.cache))
	for _, rec := range t.cache {
		out = append(out, rec)
	}
	return out
}

func (t *Tracker) get(ctx context.Context, symbol string) (types.PeakRecord, bool) {
	t.cacheMu.RLock()
	rec, ok := t.cache[symbol]
	t.cacheMu.RUnlock()
	if ok {
		return rec, true
	}
	if t.repo == nil {
		return types.PeakRecord{}, false
	}
	rec, err := t.repo.Get(ctx, symbol)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warnf("peak 记录读取失败 symbol=%s: %v", symbol, err)
		}
		return types.PeakRecord{}, false
	}
	t.cacheMu.Lock()
	t.cache[symbol] = rec
	t.cacheMu.Unlock()
	return rec, true
}

func (t *Tracker) put(ctx context.Context, rec types.PeakRecord) {
	t.cacheMu.Lock()
	t.cache[rec.Symbol] = rec
	t.cacheMu.Unlock()
	if t.repo != nil {
		if err := t.repo.Put(ctx, rec); err != nil {
			logger.Warnf("peak 记录写入失败 symbol=%s: %v", rec.Symbol, err)
		}
	}
}
