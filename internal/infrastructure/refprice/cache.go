// Package refprice keeps the SOL/USD reference price fresh in the background.
package refprice

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"solstream/internal/domain/model"
	"solstream/internal/infrastructure/httpclient"
)

const (
	defaultRefresh = 45 * time.Second
	pricePath      = "/api/v3/simple/price?ids=solana&vs_currencies=usd"
)

type simplePrice struct {
	Solana struct {
		USD float64 `json:"usd"`
	} `json:"solana"`
}

// Cache 实现 port.ReferencePrice；刷新失败保留上一次的值
type Cache struct {
	http    *httpclient.Client
	refresh time.Duration
	bits    atomic.Uint64
	updated atomic.Int64
}

func NewCache(baseURL string, refresh, timeout time.Duration) *Cache {
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	return &Cache{
		http:    httpclient.New("refprice", baseURL, timeout),
		refresh: refresh,
	}
}

// SOLUSD 未获取到时返回 0
func (c *Cache) SOLUSD() float64 {
	return math.Float64frombits(c.bits.Load())
}

// UpdatedAt 最近一次成功刷新时间
func (c *Cache) UpdatedAt() time.Time {
	ms := c.updated.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Set 手动设置参考价
func (c *Cache) Set(price float64) {
	if !model.ValidPrice(price) {
		return
	}
	c.bits.Store(math.Float64bits(price))
	c.updated.Store(time.Now().UnixMilli())
}

// Refresh 拉取一次
func (c *Cache) Refresh(ctx context.Context) error {
	var resp simplePrice
	if err := c.http.GetJSON(ctx, pricePath, &resp); err != nil {
		return err
	}
	if !model.ValidPrice(resp.Solana.USD) {
		return model.ErrNotAvailable
	}
	c.Set(resp.Solana.USD)
	return nil
}

// Run 立即刷新一次，之后按固定间隔刷新，直到 ctx 结束
func (c *Cache) Run(ctx context.Context) error {
	c.refreshLogged(ctx)

	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.refreshLogged(ctx)
		}
	}
}

func (c *Cache) refreshLogged(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		log.Warn().Err(err).Float64("last", c.SOLUSD()).Msg("reference price refresh failed, keeping last value")
		return
	}
	log.Debug().Float64("sol_usd", c.SOLUSD()).Msg("reference price refreshed")
}
