package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"solstream/internal/application/port"
	"solstream/internal/domain/model"
	"solstream/internal/infrastructure/metrics"
)

const (
	recordTimeout    = 2 * time.Second
	defaultQueueSize = 1024
)

// PriceService 把对外发布的报价异步写入最新价存储
type PriceService struct {
	repo  port.QuoteRepository
	queue chan model.PriceQuote
}

func NewPriceService(repo port.QuoteRepository) *PriceService {
	if repo == nil {
		repo = NewNoopRepo()
	}
	return &PriceService{repo: repo, queue: make(chan model.PriceQuote, defaultQueueSize)}
}

// UpdatePrice 非法报价直接丢弃
func (s *PriceService) UpdatePrice(ctx context.Context, q model.PriceQuote) error {
	if !q.Valid() {
		return model.ErrNotComputable
	}
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	return s.repo.UpsertLatestQuote(ctx, q)
}

// Record 非阻塞入队，队列满时丢弃，不影响广播
func (s *PriceService) Record(q model.PriceQuote) {
	select {
	case s.queue <- q:
	default:
		metrics.QuotesDropped.WithLabelValues("persist_backlog").Inc()
		log.Debug().Str("token", q.Token).Msg("persist queue full, quote dropped")
	}
}

// Run 消费写入队列，ctx 结束后写完已入队的报价再返回
func (s *PriceService) Run(ctx context.Context) error {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			s.drain(wctx)
			return nil
		case q := <-s.queue:
			s.write(wctx, q)
		}
	}
}

func (s *PriceService) drain(ctx context.Context) {
	for {
		select {
		case q := <-s.queue:
			s.write(ctx, q)
		default:
			return
		}
	}
}

// write 写入失败只记录日志
func (s *PriceService) write(ctx context.Context, q model.PriceQuote) {
	if err := s.UpdatePrice(ctx, q); err != nil {
		log.Warn().Err(err).Str("token", q.Token).Msg("persist latest quote failed")
	}
}

type noopRepo struct{}

func NewNoopRepo() port.QuoteRepository { return &noopRepo{} }

func (n *noopRepo) UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error { return nil }
func (n *noopRepo) Close() error                                                    { return nil }
