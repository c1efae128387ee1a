package port

import (
	"context"
	"errors"
)

// ErrNoPair 聚合器没有该代币的交易对
var ErrNoPair = errors.New("no pair")

// Pair 聚合器返回的最佳流动性交易对
type Pair struct {
	PairAddress  string
	PriceUSD     float64 // 目标代币的美元价
	LiquidityUSD float64
	DexID        string
	BaseMint     string
	QuoteMint    string
}

// LiquidityAggregator 代币 -> 最佳交易对
type LiquidityAggregator interface {
	BestPair(ctx context.Context, token string) (Pair, error)
}

// BondingCurveInfo bonding curve REST 查询结果
type BondingCurveInfo struct {
	BondingCurve string
	Complete     bool
}

// BondingCurveAPI 快速 REST 查询
type BondingCurveAPI interface {
	Lookup(ctx context.Context, mint string) (BondingCurveInfo, error)
}

// ReferencePrice 原生 gas 资产的美元参考价
type ReferencePrice interface {
	SOLUSD() float64
}
