package port

import (
	"context"

	"solstream/internal/domain/model"
)

// QuoteRepository 最新报价导出（每个代币一行，覆盖写入，不保存历史）
type QuoteRepository interface {
	UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error

	// Connection management
	Close() error
}
