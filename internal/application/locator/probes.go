package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"solstream/internal/application/port"
	"solstream/internal/domain/layout"
	"solstream/internal/domain/model"
)

var (
	RaydiumAMMProgramID = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	PumpfunProgramID    = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
)

const (
	bondingCurveSeed       = "bonding-curve"
	pumpfunDefaultDecimals = 6
	probeNameAggregator    = "aggregator"
	probeNameBondingCurve  = "bonding_curve"
	probeNameAMMScan       = "amm_scan"
)

// AggregatorProbe 聚合器最佳流动性交易对
func AggregatorProbe(agg port.LiquidityAggregator) Probe {
	return Probe{
		Name: probeNameAggregator,
		Run: func(ctx context.Context, token solana.PublicKey) ProbeResult {
			pair, err := agg.BestPair(ctx, token.String())
			if errors.Is(err, port.ErrNoPair) {
				return NotFound()
			}
			if err != nil {
				return Failed(err)
			}
			if pair.LiquidityUSD <= 0 {
				return NotFound()
			}

			pairAddr, err := solana.PublicKeyFromBase58(pair.PairAddress)
			if err != nil {
				return Failed(fmt.Errorf("pair address %q: %w", pair.PairAddress, err))
			}
			h := model.PoolHandle{
				Venue:       model.VenueGenericDexPair,
				PoolAddress: pairAddr,
				TargetMint:  token,
				BaseMint:    parseOrZero(pair.BaseMint),
				QuoteMint:   parseOrZero(pair.QuoteMint),
				DexID:       pair.DexID,
			}
			return Found(h)
		},
	}
}

// DeriveBondingCurve bonding curve PDA = (programId, "bonding-curve", mint)
func DeriveBondingCurve(programID, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(bondingCurveSeed), mint.Bytes()}, programID)
	return addr, err
}

// BondingCurveProbe 先走 REST，失败后推导 PDA 并读取账户确认，已完成迁移的曲线视为未找到
func BondingCurveProbe(api port.BondingCurveAPI, chain port.ChainReader, programID solana.PublicKey) Probe {
	return Probe{
		Name: probeNameBondingCurve,
		Run: func(ctx context.Context, token solana.PublicKey) ProbeResult {
			curve, complete, ok := lookupCurve(ctx, api, token)
			if complete {
				// 已迁移的曲线交给后续的 AMM 来源
				return NotFound()
			}
			if !ok {
				pda, err := DeriveBondingCurve(programID, token)
				if err != nil {
					return Failed(err)
				}
				acct, err := chain.AccountData(ctx, pda)
				if errors.Is(err, port.ErrAccountNotFound) {
					return NotFound()
				}
				if err != nil {
					return Failed(err)
				}
				if len(acct.Data) == 0 {
					return NotFound()
				}
				if c, err := layout.DecodeBondingCurve(acct.Data); err == nil && c.Complete {
					return NotFound()
				}
				curve = pda
			}

			return Found(model.PoolHandle{
				Venue:         model.VenuePumpfunBondingCurve,
				PoolAddress:   curve,
				TargetMint:    token,
				BaseMint:      token,
				QuoteMint:     model.NativeSOLMint,
				BaseDecimals:  mintDecimals(ctx, chain, token, pumpfunDefaultDecimals),
				QuoteDecimals: model.NativeSOLDecimals,
			})
		},
	}
}

// lookupCurve 返回 REST 给出的曲线地址以及是否已完成迁移
func lookupCurve(ctx context.Context, api port.BondingCurveAPI, token solana.PublicKey) (solana.PublicKey, bool, bool) {
	if api == nil {
		return solana.PublicKey{}, false, false
	}
	info, err := api.Lookup(ctx, token.String())
	if err != nil {
		log.Debug().Err(err).Str("token", token.String()).Msg("bonding curve api unavailable, deriving pda")
		return solana.PublicKey{}, false, false
	}
	if info.Complete {
		log.Debug().Str("token", token.String()).Msg("bonding curve complete, skipping")
		return solana.PublicKey{}, true, false
	}
	curve, err := solana.PublicKeyFromBase58(info.BondingCurve)
	if err != nil {
		return solana.PublicKey{}, false, false
	}
	return curve, false, true
}

// AMMScanProbe 按 data size + memcmp 扫描 AMM 程序账户，代币可能在任意一侧
func AMMScanProbe(chain port.ChainReader, programID solana.PublicKey) Probe {
	return Probe{
		Name: probeNameAMMScan,
		Run: func(ctx context.Context, token solana.PublicKey) ProbeResult {
			var lastErr error
			for _, offset := range []uint64{layout.RaydiumBaseMintOffset, layout.RaydiumQuoteMintOffset} {
				accounts, err := chain.ProgramAccounts(ctx, programID, layout.RaydiumPoolSize, port.Memcmp{
					Offset: offset,
					Bytes:  token.Bytes(),
				})
				if err != nil {
					lastErr = err
					continue
				}
				for _, acct := range accounts {
					pool, err := layout.DecodeRaydiumPool(acct.Data)
					if err != nil {
						log.Debug().Err(err).Str("pool", acct.Address.String()).Msg("skip undecodable pool")
						continue
					}
					baseVault, quoteVault := pool.BaseVault, pool.QuoteVault
					return Found(model.PoolHandle{
						Venue:         model.VenueRaydiumAMM,
						PoolAddress:   acct.Address,
						TargetMint:    token,
						BaseMint:      pool.BaseMint,
						QuoteMint:     pool.QuoteMint,
						BaseVault:     &baseVault,
						QuoteVault:    &quoteVault,
						BaseDecimals:  pool.BaseDecimals,
						QuoteDecimals: pool.QuoteDecimals,
					})
				}
			}
			if lastErr != nil {
				return Failed(lastErr)
			}
			return NotFound()
		},
	}
}

func mintDecimals(ctx context.Context, chain port.ChainReader, mint solana.PublicKey, fallback uint8) uint8 {
	acct, err := chain.AccountData(ctx, mint)
	if err != nil {
		return fallback
	}
	d, err := layout.DecodeMintDecimals(acct.Data)
	if err != nil {
		return fallback
	}
	return d
}

func parseOrZero(s string) solana.PublicKey {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}
	}
	return pk
}
