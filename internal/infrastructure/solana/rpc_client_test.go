package solana

import (
	"errors"
	"testing"

	"solstream/internal/domain/model"
)

func TestMapRPCError(t *testing.T) {
	err := mapRPCError("getAccountInfo", errors.New("rpc call getAccountInfo() on https://x: HTTP 429 Too Many Requests"))
	if !errors.Is(err, model.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}

	err = mapRPCError("getAccountInfo", errors.New("connection refused"))
	if errors.Is(err, model.ErrRateLimited) {
		t.Errorf("unexpected rate limit mapping: %v", err)
	}
}

func TestNewRPCClientDefaults(t *testing.T) {
	c := NewRPCClient("http://127.0.0.1:8899", "", 0)
	if c.commitment != "confirmed" {
		t.Errorf("expected confirmed commitment, got %s", c.commitment)
	}
	if c.timeout != defaultRequestTimeout {
		t.Errorf("expected default timeout, got %v", c.timeout)
	}
}
