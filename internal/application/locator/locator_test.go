package locator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"solstream/internal/application/port"
	"solstream/internal/domain/layout"
	"solstream/internal/domain/model"
)

type fakeChain struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey][]byte
	program  map[uint64][]port.KeyedAccount
	scanErr  error
	scans    []uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		accounts: make(map[solana.PublicKey][]byte),
		program:  make(map[uint64][]port.KeyedAccount),
	}
}

func (f *fakeChain) AccountData(ctx context.Context, pk solana.PublicKey) (port.AccountData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.accounts[pk]
	if !ok {
		return port.AccountData{}, port.ErrAccountNotFound
	}
	return port.AccountData{Data: data, Slot: 1}, nil
}

func (f *fakeChain) TokenAccountBalance(ctx context.Context, pk solana.PublicKey) (uint64, error) {
	return 0, nil
}

func (f *fakeChain) ProgramAccounts(ctx context.Context, program solana.PublicKey, dataSize uint64, filter port.Memcmp) ([]port.KeyedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, filter.Offset)
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.program[filter.Offset], nil
}

type fakeAggregator struct {
	pair  port.Pair
	err   error
	calls atomic.Int32
}

func (f *fakeAggregator) BestPair(ctx context.Context, token string) (port.Pair, error) {
	f.calls.Add(1)
	return f.pair, f.err
}

type fakeCurveAPI struct {
	info port.BondingCurveInfo
	err  error
}

func (f *fakeCurveAPI) Lookup(ctx context.Context, mint string) (port.BondingCurveInfo, error) {
	return f.info, f.err
}

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func countingProbe(name string, calls *atomic.Int32, res func(token solana.PublicKey) ProbeResult) Probe {
	return Probe{Name: name, Run: func(ctx context.Context, token solana.PublicKey) ProbeResult {
		calls.Add(1)
		return res(token)
	}}
}

func TestResolveCachesFirstSuccess(t *testing.T) {
	var calls atomic.Int32
	pool := newKey()
	l := New(time.Second, countingProbe("p", &calls, func(token solana.PublicKey) ProbeResult {
		return Found(model.PoolHandle{Venue: model.VenueRaydiumAMM, PoolAddress: pool, BaseMint: token})
	}))

	token := newKey()
	first, err := l.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := l.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if first.Key() != second.Key() {
		t.Errorf("expected identical handles, got %s and %s", first.Key(), second.Key())
	}
	if !first.TargetMint.Equals(token) {
		t.Errorf("target mint not set")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 probe call, got %d", got)
	}
}

func TestResolveConcurrentCallsShareProbe(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	l := New(time.Second, countingProbe("slow", &calls, func(token solana.PublicKey) ProbeResult {
		<-release
		return Found(model.PoolHandle{Venue: model.VenuePumpfunBondingCurve, PoolAddress: token})
	}))

	token := newKey()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Resolve(context.Background(), token); err != nil {
				t.Errorf("Resolve failed: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 probe call, got %d", got)
	}
}

func TestResolveSurvivesFirstCallerCancel(t *testing.T) {
	release := make(chan struct{})
	var probeCtxErr atomic.Value
	l := New(time.Second, Probe{Name: "slow", Run: func(ctx context.Context, token solana.PublicKey) ProbeResult {
		<-release
		if err := ctx.Err(); err != nil {
			probeCtxErr.Store(err)
			return Failed(err)
		}
		return Found(model.PoolHandle{Venue: model.VenuePumpfunBondingCurve, PoolAddress: token})
	}})

	token := newKey()
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := l.Resolve(firstCtx, token)
		firstErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := l.Resolve(context.Background(), token)
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first caller expected context.Canceled, got %v", err)
	}
	close(release)

	if err := <-second; err != nil {
		t.Errorf("second caller should resolve, got %v", err)
	}
	if v := probeCtxErr.Load(); v != nil {
		t.Errorf("shared probe saw cancellation: %v", v)
	}
	if _, ok := l.Cached(token); !ok {
		t.Error("handle should be cached")
	}
}

func TestResolveShortCircuitsInOrder(t *testing.T) {
	var first, second, third atomic.Int32
	l := New(time.Second,
		countingProbe("a", &first, func(solana.PublicKey) ProbeResult { return Failed(errors.New("boom")) }),
		countingProbe("b", &second, func(token solana.PublicKey) ProbeResult {
			return Found(model.PoolHandle{Venue: model.VenuePumpfunBondingCurve, PoolAddress: token})
		}),
		countingProbe("c", &third, func(solana.PublicKey) ProbeResult { return NotFound() }),
	)

	h, err := l.Resolve(context.Background(), newKey())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if h.Venue != model.VenuePumpfunBondingCurve {
		t.Errorf("expected pumpfun venue, got %s", h.Venue)
	}
	if first.Load() != 1 || second.Load() != 1 || third.Load() != 0 {
		t.Errorf("unexpected probe calls: %d %d %d", first.Load(), second.Load(), third.Load())
	}
}

func TestResolveNotFoundIsNotCached(t *testing.T) {
	var calls atomic.Int32
	l := New(time.Second, countingProbe("none", &calls, func(solana.PublicKey) ProbeResult { return NotFound() }))

	token := newKey()
	for i := 0; i < 2; i++ {
		_, err := l.Resolve(context.Background(), token)
		if !errors.Is(err, model.ErrPoolNotFound) {
			t.Fatalf("expected ErrPoolNotFound, got %v", err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("expected probes to rerun, got %d calls", calls.Load())
	}
	if l.Len() != 0 {
		t.Errorf("expected empty cache, got %d", l.Len())
	}
}

func TestResolveInvalidate(t *testing.T) {
	var calls atomic.Int32
	l := New(time.Second, countingProbe("p", &calls, func(token solana.PublicKey) ProbeResult {
		return Found(model.PoolHandle{Venue: model.VenueGenericDexPair, PoolAddress: token})
	}))
	token := newKey()
	if _, err := l.Resolve(context.Background(), token); err != nil {
		t.Fatal(err)
	}
	l.Invalidate(token)
	if _, err := l.Resolve(context.Background(), token); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 probe calls after invalidate, got %d", calls.Load())
	}
}

func TestAggregatorProbe(t *testing.T) {
	token, pair, quote := newKey(), newKey(), model.NativeSOLMint
	agg := &fakeAggregator{pair: port.Pair{
		PairAddress:  pair.String(),
		LiquidityUSD: 12000,
		DexID:        "orca",
		BaseMint:     token.String(),
		QuoteMint:    quote.String(),
	}}

	res := AggregatorProbe(agg).Run(context.Background(), token)
	if res.Outcome != OutcomeFound {
		t.Fatalf("expected found, got %v (%v)", res.Outcome, res.Err)
	}
	if res.Handle.Source() != "dexscreener:orca" {
		t.Errorf("unexpected source %s", res.Handle.Source())
	}
	if !res.Handle.TargetIsBase() {
		t.Errorf("expected token on base side")
	}

	agg.pair.LiquidityUSD = 0
	if res := AggregatorProbe(agg).Run(context.Background(), token); res.Outcome != OutcomeNotFound {
		t.Errorf("zero liquidity should be not found, got %v", res.Outcome)
	}

	agg.err = port.ErrNoPair
	if res := AggregatorProbe(agg).Run(context.Background(), token); res.Outcome != OutcomeNotFound {
		t.Errorf("no pair should be not found, got %v", res.Outcome)
	}

	agg.err = model.ErrRateLimited
	if res := AggregatorProbe(agg).Run(context.Background(), token); res.Outcome != OutcomeError {
		t.Errorf("rate limit should be an error, got %v", res.Outcome)
	}
}

func TestBondingCurveProbeDerivesPDA(t *testing.T) {
	chain := newFakeChain()
	token := newKey()
	pda, err := DeriveBondingCurve(PumpfunProgramID, token)
	if err != nil {
		t.Fatalf("DeriveBondingCurve failed: %v", err)
	}
	again, _ := DeriveBondingCurve(PumpfunProgramID, token)
	if !pda.Equals(again) {
		t.Fatalf("derivation not deterministic")
	}

	chain.accounts[pda] = layout.EncodeBondingCurve([8]byte{}, layout.BondingCurve{
		VirtualTokenReserves: 1_000_000_000,
		VirtualSolReserves:   30_000_000_000,
	})
	mint := make([]byte, 82)
	mint[44] = 9
	chain.accounts[token] = mint

	probe := BondingCurveProbe(&fakeCurveAPI{err: errors.New("down")}, chain, PumpfunProgramID)
	res := probe.Run(context.Background(), token)
	if res.Outcome != OutcomeFound {
		t.Fatalf("expected found, got %v (%v)", res.Outcome, res.Err)
	}
	h := res.Handle
	if !h.PoolAddress.Equals(pda) {
		t.Errorf("expected pda %s, got %s", pda, h.PoolAddress)
	}
	if !h.QuoteMint.Equals(model.NativeSOLMint) || h.QuoteDecimals != 9 || h.BaseDecimals != 9 {
		t.Errorf("unexpected handle %+v", h)
	}
}

func TestBondingCurveProbeUsesAPI(t *testing.T) {
	chain := newFakeChain()
	token, curve := newKey(), newKey()
	probe := BondingCurveProbe(&fakeCurveAPI{info: port.BondingCurveInfo{BondingCurve: curve.String()}}, chain, PumpfunProgramID)

	res := probe.Run(context.Background(), token)
	if res.Outcome != OutcomeFound {
		t.Fatalf("expected found, got %v", res.Outcome)
	}
	if !res.Handle.PoolAddress.Equals(curve) {
		t.Errorf("expected api curve address")
	}
	if res.Handle.BaseDecimals != pumpfunDefaultDecimals {
		t.Errorf("expected default decimals, got %d", res.Handle.BaseDecimals)
	}
}

func TestBondingCurveProbeMissingAccount(t *testing.T) {
	res := BondingCurveProbe(nil, newFakeChain(), PumpfunProgramID).Run(context.Background(), newKey())
	if res.Outcome != OutcomeNotFound {
		t.Errorf("expected not found, got %v", res.Outcome)
	}
}

func TestBondingCurveSkipsCompletedCurve(t *testing.T) {
	chain := newFakeChain()
	token, curve := newKey(), newKey()
	api := &fakeCurveAPI{info: port.BondingCurveInfo{BondingCurve: curve.String(), Complete: true}}
	if res := BondingCurveProbe(api, chain, PumpfunProgramID).Run(context.Background(), token); res.Outcome != OutcomeNotFound {
		t.Errorf("completed curve from api should be not found, got %v", res.Outcome)
	}

	pda, err := DeriveBondingCurve(PumpfunProgramID, token)
	if err != nil {
		t.Fatalf("DeriveBondingCurve failed: %v", err)
	}
	chain.accounts[pda] = layout.EncodeBondingCurve([8]byte{}, layout.BondingCurve{
		RealSolReserves: 85_000_000_000,
		Complete:        true,
	})
	res := BondingCurveProbe(&fakeCurveAPI{err: errors.New("down")}, chain, PumpfunProgramID).Run(context.Background(), token)
	if res.Outcome != OutcomeNotFound {
		t.Errorf("completed curve account should be not found, got %v", res.Outcome)
	}
}

func TestResolveFallsThroughCompletedCurve(t *testing.T) {
	token, curve, pair := newKey(), newKey(), newKey()
	api := &fakeCurveAPI{info: port.BondingCurveInfo{BondingCurve: curve.String(), Complete: true}}
	agg := &fakeAggregator{pair: port.Pair{
		PairAddress:  pair.String(),
		LiquidityUSD: 50000,
		DexID:        "raydium",
		BaseMint:     token.String(),
		QuoteMint:    model.NativeSOLMint.String(),
	}}
	l := New(time.Second,
		BondingCurveProbe(api, newFakeChain(), PumpfunProgramID),
		AggregatorProbe(agg),
	)

	h, err := l.Resolve(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if !h.PoolAddress.Equals(pair) {
		t.Errorf("expected aggregator pair %s, got %s", pair, h.PoolAddress)
	}
}

func TestAMMScanProbeQuoteSide(t *testing.T) {
	chain := newFakeChain()
	token, poolAddr := newKey(), newKey()
	baseVault, quoteVault := newKey(), newKey()
	chain.program[layout.RaydiumQuoteMintOffset] = []port.KeyedAccount{{
		Address: poolAddr,
		Data: layout.EncodeRaydiumPool(layout.RaydiumPool{
			BaseDecimals:  6,
			QuoteDecimals: 9,
			BaseVault:     baseVault,
			QuoteVault:    quoteVault,
			BaseMint:      model.USDCMint,
			QuoteMint:     token,
		}),
	}}

	res := AMMScanProbe(chain, RaydiumAMMProgramID).Run(context.Background(), token)
	if res.Outcome != OutcomeFound {
		t.Fatalf("expected found, got %v (%v)", res.Outcome, res.Err)
	}
	h := res.Handle
	if h.TargetIsBase() {
		t.Errorf("expected token on quote side")
	}
	if h.BaseVault == nil || !h.BaseVault.Equals(baseVault) || h.QuoteVault == nil || !h.QuoteVault.Equals(quoteVault) {
		t.Errorf("vaults not populated: %+v", h)
	}
	if len(chain.scans) != 2 || chain.scans[0] != layout.RaydiumBaseMintOffset || chain.scans[1] != layout.RaydiumQuoteMintOffset {
		t.Errorf("unexpected scan offsets %v", chain.scans)
	}
}

func TestAMMScanProbeErrors(t *testing.T) {
	chain := newFakeChain()
	chain.scanErr = model.ErrRateLimited
	res := AMMScanProbe(chain, RaydiumAMMProgramID).Run(context.Background(), newKey())
	if res.Outcome != OutcomeError || !errors.Is(res.Err, model.ErrRateLimited) {
		t.Errorf("expected rate limit error, got %v %v", res.Outcome, res.Err)
	}

	chain.scanErr = nil
	res = AMMScanProbe(chain, RaydiumAMMProgramID).Run(context.Background(), newKey())
	if res.Outcome != OutcomeNotFound {
		t.Errorf("expected not found, got %v", res.Outcome)
	}
}
