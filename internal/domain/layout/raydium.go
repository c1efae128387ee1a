package layout

import (
	"encoding/binary"
	"time"

	"github.com/gagliardetto/solana-go"

	"solstream/internal/domain/model"
)

// Raydium AMM v4 LIQUIDITY_STATE 布局
const (
	RaydiumPoolSize = 752

	raydiumBaseDecimalOffset  = 32
	raydiumQuoteDecimalOffset = 40
	raydiumBaseVaultOffset    = 336
	raydiumQuoteVaultOffset   = 368
	RaydiumBaseMintOffset     = 400
	RaydiumQuoteMintOffset    = 432
)

// RaydiumPool 池账户中定位储备所需的字段
type RaydiumPool struct {
	BaseDecimals  uint8
	QuoteDecimals uint8
	BaseVault     solana.PublicKey
	QuoteVault    solana.PublicKey
	BaseMint      solana.PublicKey
	QuoteMint     solana.PublicKey
}

// DecodeRaydiumPool 解析池账户（两阶段中的第一阶段，只做一次）
func DecodeRaydiumPool(raw []byte) (RaydiumPool, error) {
	if len(raw) != RaydiumPoolSize {
		return RaydiumPool{}, model.NewDecodeError(model.VenueRaydiumAMM,
			"unexpected pool size %d, want %d", len(raw), RaydiumPoolSize)
	}
	baseDec := binary.LittleEndian.Uint64(raw[raydiumBaseDecimalOffset:])
	quoteDec := binary.LittleEndian.Uint64(raw[raydiumQuoteDecimalOffset:])
	if baseDec > 255 || quoteDec > 255 {
		return RaydiumPool{}, model.NewDecodeError(model.VenueRaydiumAMM,
			"decimals out of range: base=%d quote=%d", baseDec, quoteDec)
	}
	p := RaydiumPool{
		BaseDecimals:  uint8(baseDec),
		QuoteDecimals: uint8(quoteDec),
		BaseVault:     readPubkey(raw, raydiumBaseVaultOffset),
		QuoteVault:    readPubkey(raw, raydiumQuoteVaultOffset),
		BaseMint:      readPubkey(raw, RaydiumBaseMintOffset),
		QuoteMint:     readPubkey(raw, RaydiumQuoteMintOffset),
	}
	if p.BaseVault.IsZero() || p.QuoteVault.IsZero() {
		return RaydiumPool{}, model.NewDecodeError(model.VenueRaydiumAMM, "empty vault address")
	}
	return p, nil
}

// EncodeRaydiumPool 构造一个只填充已知字段的池账户（测试使用）
func EncodeRaydiumPool(p RaydiumPool) []byte {
	out := make([]byte, RaydiumPoolSize)
	binary.LittleEndian.PutUint64(out[raydiumBaseDecimalOffset:], uint64(p.BaseDecimals))
	binary.LittleEndian.PutUint64(out[raydiumQuoteDecimalOffset:], uint64(p.QuoteDecimals))
	copy(out[raydiumBaseVaultOffset:], p.BaseVault[:])
	copy(out[raydiumQuoteVaultOffset:], p.QuoteVault[:])
	copy(out[RaydiumBaseMintOffset:], p.BaseMint[:])
	copy(out[RaydiumQuoteMintOffset:], p.QuoteMint[:])
	return out
}

// RaydiumSnapshot 第二阶段: 由两个 vault 余额组成快照
func RaydiumSnapshot(baseVaultAmount, quoteVaultAmount, slot uint64) model.ReserveSnapshot {
	return model.ReserveSnapshot{
		BaseAmount:  baseVaultAmount,
		QuoteAmount: quoteVaultAmount,
		Timestamp:   time.Now(),
		Slot:        slot,
	}
}

func readPubkey(raw []byte, offset int) solana.PublicKey {
	return solana.PublicKeyFromBytes(raw[offset : offset+32])
}
