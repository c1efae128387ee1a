// Package layout decodes venue-specific account bytes into reserve quantities.
package layout

import (
	"solstream/internal/domain/model"
)

// Decode 按 venue 解析原始账户字节。
// Raydium 池账户不含储备，必须走 vault 读取；聚合器报价不经过字节解析。
func Decode(venue model.Venue, raw []byte, slot uint64) (model.ReserveSnapshot, error) {
	switch venue {
	case model.VenuePumpfunBondingCurve:
		return PumpfunSnapshot(raw, slot)
	case model.VenueRaydiumAMM:
		return model.ReserveSnapshot{}, model.NewDecodeError(venue, "reserves live in vault accounts")
	case model.VenueGenericDexPair:
		return model.ReserveSnapshot{}, model.NewDecodeError(venue, "aggregator pairs carry no layout")
	default:
		return model.ReserveSnapshot{}, model.NewDecodeError(venue, "unsupported venue")
	}
}
