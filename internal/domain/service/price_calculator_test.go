package service

import (
	"errors"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"

	"solstream/internal/domain/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-12*math.Max(1, math.Abs(b))
}

func pumpHandle(token solana.PublicKey) model.PoolHandle {
	return model.PoolHandle{
		Venue:         model.VenuePumpfunBondingCurve,
		PoolAddress:   solana.NewWallet().PublicKey(),
		TargetMint:    token,
		BaseMint:      token,
		QuoteMint:     model.NativeSOLMint,
		BaseDecimals:  6,
		QuoteDecimals: model.NativeSOLDecimals,
	}
}

func TestComputeUSDTargetOnBaseSide(t *testing.T) {
	token := solana.NewWallet().PublicKey()
	h := pumpHandle(token)
	// 1_000 代币 (6 位) 对 2 SOL (9 位) => 0.002 SOL/代币
	snap := model.ReserveSnapshot{BaseAmount: 1_000_000_000, QuoteAmount: 2_000_000_000}

	price, err := NewPriceCalculator().ComputeUSD(snap, h, 150)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !almostEqual(price, 0.3) {
		t.Fatalf("price = %v, want 0.3", price)
	}
}

func TestComputeUSDTargetOnQuoteSideInverts(t *testing.T) {
	token := solana.NewWallet().PublicKey()
	h := model.PoolHandle{
		Venue:         model.VenueRaydiumAMM,
		TargetMint:    token,
		BaseMint:      model.USDCMint,
		QuoteMint:     token,
		BaseDecimals:  6,
		QuoteDecimals: 9,
	}
	// 500 USDC 对 250 代币 => 2 USD
	snap := model.ReserveSnapshot{BaseAmount: 500_000_000, QuoteAmount: 250_000_000_000}

	price, err := NewPriceCalculator().ComputeUSD(snap, h, 0)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !almostEqual(price, 2) {
		t.Fatalf("price = %v, want 2", price)
	}
}

func TestComputeUSDRejectsZeroBase(t *testing.T) {
	h := pumpHandle(solana.NewWallet().PublicKey())
	for _, snap := range []model.ReserveSnapshot{
		{BaseAmount: 0, QuoteAmount: 1_000},
		{BaseAmount: 0, QuoteAmount: 0},
		{BaseAmount: 1_000, QuoteAmount: 0},
	} {
		price, err := NewPriceCalculator().ComputeUSD(snap, h, 150)
		if !errors.Is(err, model.ErrZeroReserve) {
			t.Fatalf("snapshot %+v: expected ErrZeroReserve, got %v (price %v)", snap, err, price)
		}
	}
}

func TestComputeUSDRequiresSOLReference(t *testing.T) {
	h := pumpHandle(solana.NewWallet().PublicKey())
	snap := model.ReserveSnapshot{BaseAmount: 10, QuoteAmount: 10}
	if _, err := NewPriceCalculator().ComputeUSD(snap, h, 0); !errors.Is(err, model.ErrNotComputable) {
		t.Fatalf("expected ErrNotComputable, got %v", err)
	}
}

func TestComputeUSDUnknownReferenceMint(t *testing.T) {
	token := solana.NewWallet().PublicKey()
	h := model.PoolHandle{
		TargetMint: token,
		BaseMint:   token,
		QuoteMint:  solana.NewWallet().PublicKey(),
	}
	snap := model.ReserveSnapshot{BaseAmount: 10, QuoteAmount: 10}
	if _, err := NewPriceCalculator().ComputeUSD(snap, h, 150); !errors.Is(err, model.ErrNotComputable) {
		t.Fatalf("expected ErrNotComputable, got %v", err)
	}
}

func TestComputeUSDLargeReserves(t *testing.T) {
	h := pumpHandle(solana.NewWallet().PublicKey())
	// 超过 int64 的储备也能正确缩放
	snap := model.ReserveSnapshot{BaseAmount: math.MaxUint64, QuoteAmount: math.MaxUint64}
	h.BaseDecimals = 9
	price, err := NewPriceCalculator().ComputeUSD(snap, h, 100)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !almostEqual(price, 100) {
		t.Fatalf("price = %v, want 100", price)
	}
}

func TestComputeUSDKeepsPrecisionForTinyRatios(t *testing.T) {
	token := solana.NewWallet().PublicKey()
	h := pumpHandle(token)
	h.BaseDecimals = 0
	// 1.8e19 个代币对 1 lamport，单价远小于 1e-16
	snap := model.ReserveSnapshot{BaseAmount: 18_000_000_000_000_000_000, QuoteAmount: 1}

	price, err := NewPriceCalculator().ComputeUSD(snap, h, 150)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	want := 150 * 1e-9 / 1.8e19
	if math.Abs(price-want)/want > 1e-9 {
		t.Fatalf("price = %v, want %v", price, want)
	}
}
