// Package pumpfun looks up bonding curve addresses through the pump.fun REST API.
package pumpfun

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"solstream/internal/application/port"
	"solstream/internal/infrastructure/httpclient"
)

type coinDTO struct {
	Mint         string `json:"mint"`
	BondingCurve string `json:"bonding_curve"`
	Complete     bool   `json:"complete"`
}

// Client 实现 port.BondingCurveAPI
type Client struct {
	http *httpclient.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{http: httpclient.New("pumpfun", baseURL, timeout)}
}

func (c *Client) Lookup(ctx context.Context, mint string) (port.BondingCurveInfo, error) {
	var coin coinDTO
	if err := c.http.GetJSON(ctx, "/coins/"+url.PathEscape(mint), &coin); err != nil {
		if errors.Is(err, httpclient.ErrNotFound) {
			return port.BondingCurveInfo{}, fmt.Errorf("pumpfun coin %s: %w", mint, err)
		}
		return port.BondingCurveInfo{}, err
	}
	if coin.BondingCurve == "" {
		return port.BondingCurveInfo{}, fmt.Errorf("pumpfun coin %s: empty bonding curve", mint)
	}
	return port.BondingCurveInfo{BondingCurve: coin.BondingCurve, Complete: coin.Complete}, nil
}
