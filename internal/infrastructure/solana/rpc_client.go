// Package solana adapts the solana-go JSON-RPC client to the chain reader port.
package solana

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"solstream/internal/application/port"
	"solstream/internal/domain/model"
)

const defaultRequestTimeout = 10 * time.Second

// RPCClient 带超时的只读 RPC 客户端
type RPCClient struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
	timeout    time.Duration
}

func NewRPCClient(endpoint, commitment string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	c := rpc.CommitmentType(commitment)
	if commitment == "" {
		c = rpc.CommitmentConfirmed
	}
	return &RPCClient{
		client:     rpc.New(endpoint),
		commitment: c,
		timeout:    timeout,
	}
}

func (c *RPCClient) AccountData(ctx context.Context, account sol.PublicKey) (port.AccountData, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   sol.EncodingBase64,
		Commitment: c.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return port.AccountData{}, port.ErrAccountNotFound
	}
	if err != nil {
		return port.AccountData{}, mapRPCError("getAccountInfo", err)
	}
	if resp == nil || resp.Value == nil || resp.Value.Data == nil {
		return port.AccountData{}, port.ErrAccountNotFound
	}
	return port.AccountData{Data: resp.Value.Data.GetBinary(), Slot: resp.Context.Slot}, nil
}

func (c *RPCClient) TokenAccountBalance(ctx context.Context, account sol.PublicKey) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.GetTokenAccountBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, mapRPCError("getTokenAccountBalance", err)
	}
	if resp == nil || resp.Value == nil {
		return 0, port.ErrAccountNotFound
	}
	amount, err := strconv.ParseUint(resp.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token amount %q: %w", resp.Value.Amount, err)
	}
	return amount, nil
}

func (c *RPCClient) ProgramAccounts(ctx context.Context, program sol.PublicKey, dataSize uint64, filter port.Memcmp) ([]port.KeyedAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Encoding:   sol.EncodingBase64,
		Commitment: c.commitment,
		Filters: []rpc.RPCFilter{
			{DataSize: dataSize},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: filter.Offset, Bytes: sol.Base58(filter.Bytes)}},
		},
	})
	if err != nil {
		return nil, mapRPCError("getProgramAccounts", err)
	}

	out := make([]port.KeyedAccount, 0, len(resp))
	for _, item := range resp {
		if item == nil || item.Account == nil || item.Account.Data == nil {
			continue
		}
		out = append(out, port.KeyedAccount{Address: item.Pubkey, Data: item.Account.Data.GetBinary()})
	}
	return out, nil
}

// mapRPCError HTTP 429 归一化为 ErrRateLimited
func mapRPCError(method string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "too many requests") {
		return fmt.Errorf("%s: %w: %v", method, model.ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", method, err)
}
