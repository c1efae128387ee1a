package model

import (
	"math"
	"time"
)

// ReserveSnapshot 一次通知或轮询得到的储备，不跨 tick 复用
type ReserveSnapshot struct {
	BaseAmount  uint64    `json:"base_amount"`
	QuoteAmount uint64    `json:"quote_amount"`
	Timestamp   time.Time `json:"timestamp"`
	Slot        uint64    `json:"slot"`
}

// PriceQuote 唯一对外暴露的价格单元
type PriceQuote struct {
	Token                string  `json:"token"`
	PriceUSD             float64 `json:"price_usd"`
	PreviousPriceUSD     float64 `json:"previous_price_usd"`
	ChangePercentInstant float64 `json:"change_percent_instant"`
	TimestampMs          int64   `json:"ts_ms"`
	Source               string  `json:"source"`
}

// NewPriceQuote 基于上一次价格构造报价，prev<=0 时变化率为 0
func NewPriceQuote(token string, price, prev float64, ts time.Time, source string) PriceQuote {
	q := PriceQuote{
		Token:            token,
		PriceUSD:         price,
		PreviousPriceUSD: prev,
		TimestampMs:      ts.UnixMilli(),
		Source:           source,
	}
	if prev > 0 {
		q.ChangePercentInstant = (price - prev) / prev * 100
	}
	return q
}

// Valid priceUsd 必须为正且有限
func (q PriceQuote) Valid() bool {
	return ValidPrice(q.PriceUSD)
}

func ValidPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
