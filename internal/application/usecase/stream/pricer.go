package stream

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"solstream/internal/application/port"
	"solstream/internal/domain/layout"
	"solstream/internal/domain/model"
	"solstream/internal/domain/service"
)

// Pricer 把推送通知或直接读取转换为美元价
type Pricer struct {
	chain port.ChainReader
	agg   port.LiquidityAggregator
	ref   port.ReferencePrice
	calc  *service.PriceCalculator
}

func NewPricer(chain port.ChainReader, agg port.LiquidityAggregator, ref port.ReferencePrice) *Pricer {
	return &Pricer{chain: chain, agg: agg, ref: ref, calc: service.NewPriceCalculator()}
}

// FromNotification 推送路径。bonding curve 直接解析通知数据，Raydium 读 vault，聚合器重新查询
func (p *Pricer) FromNotification(ctx context.Context, h model.PoolHandle, n port.AccountNotification) (float64, error) {
	if h.Venue == model.VenuePumpfunBondingCurve && len(n.Data) > 0 {
		snap, err := layout.Decode(h.Venue, n.Data, n.Slot)
		if err != nil {
			return 0, err
		}
		return p.calc.ComputeUSD(snap, h, p.ref.SOLUSD())
	}
	return p.Read(ctx, h)
}

// PushNeedsRead 通知本身不含储备时，推送路径需要一次外部读取
func PushNeedsRead(h model.PoolHandle, n port.AccountNotification) bool {
	return h.Venue != model.VenuePumpfunBondingCurve || len(n.Data) == 0
}

// Read 轮询路径：不依赖推送，直接读取
func (p *Pricer) Read(ctx context.Context, h model.PoolHandle) (float64, error) {
	switch h.Venue {
	case model.VenueGenericDexPair:
		return p.readAggregator(ctx, h)
	case model.VenuePumpfunBondingCurve:
		acct, err := p.chain.AccountData(ctx, h.PoolAddress)
		if err != nil {
			return 0, err
		}
		snap, err := layout.Decode(h.Venue, acct.Data, acct.Slot)
		if err != nil {
			return 0, err
		}
		return p.calc.ComputeUSD(snap, h, p.ref.SOLUSD())
	case model.VenueRaydiumAMM:
		snap, err := p.readVaults(ctx, h)
		if err != nil {
			return 0, err
		}
		return p.calc.ComputeUSD(snap, h, p.ref.SOLUSD())
	default:
		return 0, model.NewDecodeError(h.Venue, "unsupported venue")
	}
}

// readAggregator 聚合器价格直接使用，不经过 PriceCalculator
func (p *Pricer) readAggregator(ctx context.Context, h model.PoolHandle) (float64, error) {
	pair, err := p.agg.BestPair(ctx, h.TargetMint.String())
	if err != nil {
		return 0, err
	}
	if !model.ValidPrice(pair.PriceUSD) {
		return 0, model.ErrNotComputable
	}
	return pair.PriceUSD, nil
}

// readVaults 两个 vault 余额并发读取
func (p *Pricer) readVaults(ctx context.Context, h model.PoolHandle) (model.ReserveSnapshot, error) {
	if h.BaseVault == nil || h.QuoteVault == nil {
		return model.ReserveSnapshot{}, model.NewDecodeError(h.Venue, "pool handle has no vaults")
	}

	var base, quote uint64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := p.chain.TokenAccountBalance(gctx, *h.BaseVault)
		if err != nil {
			return fmt.Errorf("base vault: %w", err)
		}
		base = v
		return nil
	})
	g.Go(func() error {
		v, err := p.chain.TokenAccountBalance(gctx, *h.QuoteVault)
		if err != nil {
			return fmt.Errorf("quote vault: %w", err)
		}
		quote = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.ReserveSnapshot{}, err
	}
	return layout.RaydiumSnapshot(base, quote, 0), nil
}

// dropReason 无法产出报价时的分类标签
func dropReason(err error) string {
	switch {
	case errors.Is(err, model.ErrZeroReserve):
		return "zero_reserve"
	case errors.Is(err, model.ErrNotAvailable):
		return "not_available"
	case errors.Is(err, model.ErrNotComputable):
		return "not_computable"
	case errors.Is(err, model.ErrDecode):
		return "decode"
	case errors.Is(err, model.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "read_error"
	}
}
