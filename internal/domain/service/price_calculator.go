package service

import (
	"math/big"

	"github.com/shopspring/decimal"

	"solstream/internal/domain/model"
)

// divisionScale 除法保留的小数位，远大于 decimal 默认的 16 位
const divisionScale = 40

// PriceCalculator 由储备与报价资产美元价计算代币美元价
type PriceCalculator struct{}

func NewPriceCalculator() *PriceCalculator {
	return &PriceCalculator{}
}

// ComputeUSD 返回目标代币的美元价格。
// quoteAssetUSD 为原生 SOL 的美元参考价；稳定币按 1:1 计价。
func (pc *PriceCalculator) ComputeUSD(snap model.ReserveSnapshot, h model.PoolHandle, quoteAssetUSD float64) (float64, error) {
	if snap.BaseAmount == 0 || snap.QuoteAmount == 0 {
		return 0, model.ErrZeroReserve
	}

	base := scaled(snap.BaseAmount, h.BaseDecimals)
	quote := scaled(snap.QuoteAmount, h.QuoteDecimals)

	multiplier, err := referenceMultiplier(h.ReferenceMint(), quoteAssetUSD)
	if err != nil {
		return 0, err
	}

	// 目标代币以参考侧计价；先乘参考价再除，保留极小单价的有效位
	num, den := quote, base
	if !h.TargetIsBase() {
		num, den = base, quote
	}
	ratio := num.Mul(multiplier).DivRound(den, divisionScale)

	price := ratio.InexactFloat64()
	if !model.ValidPrice(price) {
		return 0, model.ErrNotComputable
	}
	return price, nil
}

func referenceMultiplier(ref model.TokenAddress, solUSD float64) (decimal.Decimal, error) {
	switch {
	case ref.Equals(model.NativeSOLMint):
		if !model.ValidPrice(solUSD) {
			return decimal.Zero, model.ErrNotComputable
		}
		return decimal.NewFromFloat(solUSD), nil
	case model.IsUSDStable(ref):
		return decimal.NewFromInt(1), nil
	default:
		return decimal.Zero, model.ErrNotComputable
	}
}

func scaled(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}
