package peak

import (
	"context"
	"errors"

	"evcore/internal/types"
)

// ErrNotFound 表示该 symbol 尚无峰值记录。
var ErrNotFound = errors.New("peak record not found")

// Repository 峰值记录的键值仓储。实现方自行保证单写者；
// Tracker 在其上叠加每 symbol 的互斥。
type Repository interface {
	Get(ctx context.Context, symbol string) (types.PeakRecord, error)
	Put(ctx context.Context, rec types.PeakRecord) error
	Delete(ctx context.Context, symbol string) error
	All(ctx context.Context) ([]types.PeakRecord, error)
	Close() error
}
