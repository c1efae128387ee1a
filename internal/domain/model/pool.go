package model

import (
	"github.com/gagliardetto/solana-go"
)

// TokenAddress 代币 mint 地址（32 字节公钥）
type TokenAddress = solana.PublicKey

// 常用 mint
var (
	NativeSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	USDCMint      = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	USDTMint      = solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
)

// NativeSOLDecimals SOL 精度
const NativeSOLDecimals uint8 = 9

// IsUSDStable 报价资产是否为 1:1 的美元稳定币
func IsUSDStable(mint solana.PublicKey) bool {
	return mint.Equals(USDCMint) || mint.Equals(USDTMint)
}

// PoolHandle 代币对应的流动性池，首次解析成功后缓存整个进程生命周期
type PoolHandle struct {
	Venue       Venue            `json:"venue"`
	PoolAddress solana.PublicKey `json:"pool_address"`
	TargetMint  solana.PublicKey `json:"target_mint"` // 被订阅的代币
	BaseMint    solana.PublicKey `json:"base_mint"`
	QuoteMint   solana.PublicKey `json:"quote_mint"`

	// 仅 Raydium: 从池账户解析一次后缓存
	BaseVault  *solana.PublicKey `json:"base_vault,omitempty"`
	QuoteVault *solana.PublicKey `json:"quote_vault,omitempty"`

	BaseDecimals  uint8 `json:"base_decimals"`
	QuoteDecimals uint8 `json:"quote_decimals"`

	// 仅聚合器: dex 标识
	DexID string `json:"dex_id,omitempty"`
}

// Key 订阅表中的唯一键
func (h PoolHandle) Key() string {
	return h.Venue.String() + ":" + h.PoolAddress.String() + ":" + h.TargetMint.String()
}

// TargetIsBase 目标代币是否位于池的 base 侧
func (h PoolHandle) TargetIsBase() bool {
	return h.TargetMint.Equals(h.BaseMint)
}

// ReferenceMint 与目标代币相对的一侧
func (h PoolHandle) ReferenceMint() solana.PublicKey {
	if h.TargetIsBase() {
		return h.QuoteMint
	}
	return h.BaseMint
}

// Source 报价来源标识（用于 price_update.data.source）
func (h PoolHandle) Source() string {
	if h.Venue == VenueGenericDexPair && h.DexID != "" {
		return "dexscreener:" + h.DexID
	}
	return h.Venue.String()
}
