package locator

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"solstream/internal/domain/model"
)

// Outcome 单个探测的结果标签
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeFound
	OutcomeError
)

type ProbeResult struct {
	Outcome Outcome
	Handle  model.PoolHandle
	Err     error
}

func Found(h model.PoolHandle) ProbeResult { return ProbeResult{Outcome: OutcomeFound, Handle: h} }
func NotFound() ProbeResult                { return ProbeResult{Outcome: OutcomeNotFound} }
func Failed(err error) ProbeResult         { return ProbeResult{Outcome: OutcomeError, Err: err} }

// Probe 按顺序执行的 venue 探测
type Probe struct {
	Name string
	Run  func(ctx context.Context, token solana.PublicKey) ProbeResult
}
