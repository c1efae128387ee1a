// Package aggregator queries the DexScreener token endpoint for the deepest Solana pair.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"solstream/internal/application/port"
	"solstream/internal/infrastructure/httpclient"
)

const solanaChainID = "solana"

type tokenRef struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type pairDTO struct {
	ChainID     string   `json:"chainId"`
	DexID       string   `json:"dexId"`
	PairAddress string   `json:"pairAddress"`
	BaseToken   tokenRef `json:"baseToken"`
	QuoteToken  tokenRef `json:"quoteToken"`
	PriceNative string   `json:"priceNative"`
	PriceUSD    string   `json:"priceUsd"`
	Liquidity   *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

type tokensResponse struct {
	Pairs []pairDTO `json:"pairs"`
}

// DexScreener 实现 port.LiquidityAggregator
type DexScreener struct {
	http *httpclient.Client
}

func NewDexScreener(baseURL string, timeout time.Duration) *DexScreener {
	return &DexScreener{http: httpclient.New("dexscreener", baseURL, timeout)}
}

// BestPair 返回 Solana 链上流动性最高的交易对，价格换算为目标代币的美元价
func (d *DexScreener) BestPair(ctx context.Context, token string) (port.Pair, error) {
	var resp tokensResponse
	err := d.http.GetJSON(ctx, "/latest/dex/tokens/"+url.PathEscape(token), &resp)
	if errors.Is(err, httpclient.ErrNotFound) {
		return port.Pair{}, port.ErrNoPair
	}
	if err != nil {
		return port.Pair{}, err
	}

	best, ok := bestSolanaPair(resp.Pairs)
	if !ok {
		return port.Pair{}, port.ErrNoPair
	}

	price, err := targetPriceUSD(best, token)
	if err != nil {
		return port.Pair{}, err
	}
	return port.Pair{
		PairAddress:  best.PairAddress,
		PriceUSD:     price,
		LiquidityUSD: best.Liquidity.USD,
		DexID:        best.DexID,
		BaseMint:     best.BaseToken.Address,
		QuoteMint:    best.QuoteToken.Address,
	}, nil
}

func bestSolanaPair(pairs []pairDTO) (pairDTO, bool) {
	var (
		best  pairDTO
		found bool
	)
	for _, p := range pairs {
		if p.ChainID != solanaChainID || p.Liquidity == nil || p.PairAddress == "" {
			continue
		}
		if !found || p.Liquidity.USD > best.Liquidity.USD {
			best, found = p, true
		}
	}
	return best, found
}

// targetPriceUSD priceUsd 是 base 代币的价格；目标在 quote 侧时用 priceUsd/priceNative
func targetPriceUSD(p pairDTO, token string) (float64, error) {
	baseUSD, err := strconv.ParseFloat(p.PriceUSD, 64)
	if err != nil {
		return 0, fmt.Errorf("dexscreener priceUsd %q: %w", p.PriceUSD, err)
	}
	if p.BaseToken.Address == token {
		return baseUSD, nil
	}
	native, err := strconv.ParseFloat(p.PriceNative, 64)
	if err != nil || native <= 0 {
		return 0, fmt.Errorf("dexscreener priceNative %q: invalid", p.PriceNative)
	}
	return baseUSD / native, nil
}
