package layout

import (
	"encoding/binary"
	"time"

	"solstream/internal/domain/model"
)

// bonding curve 账户布局: 8 字节 discriminator + 连续的 u64 小端字段
const (
	pumpfunDiscriminatorLen = 8
	pumpfunMinLen           = pumpfunDiscriminatorLen + 4*8
	pumpfunSupplyEnd        = pumpfunMinLen + 8
	pumpfunCompleteOffset   = pumpfunSupplyEnd
)

// BondingCurve 解析后的 bonding curve 账户
type BondingCurve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// Graduated 虚拟储备全为零表示曲线已迁移
func (c BondingCurve) Graduated() bool {
	return c.VirtualTokenReserves == 0 && c.VirtualSolReserves == 0
}

// DecodeBondingCurve 解析 bonding curve 账户原始字节
func DecodeBondingCurve(raw []byte) (BondingCurve, error) {
	if len(raw) < pumpfunMinLen {
		return BondingCurve{}, model.NewDecodeError(model.VenuePumpfunBondingCurve,
			"account too short: %d < %d", len(raw), pumpfunMinLen)
	}
	body := raw[pumpfunDiscriminatorLen:]
	c := BondingCurve{
		VirtualTokenReserves: binary.LittleEndian.Uint64(body[0:8]),
		VirtualSolReserves:   binary.LittleEndian.Uint64(body[8:16]),
		RealTokenReserves:    binary.LittleEndian.Uint64(body[16:24]),
		RealSolReserves:      binary.LittleEndian.Uint64(body[24:32]),
	}
	if len(raw) >= pumpfunSupplyEnd {
		c.TokenTotalSupply = binary.LittleEndian.Uint64(raw[pumpfunMinLen:pumpfunSupplyEnd])
	}
	if len(raw) > pumpfunCompleteOffset {
		c.Complete = raw[pumpfunCompleteOffset] != 0
	}
	return c, nil
}

// EncodeBondingCurve 按账户布局序列化（测试与回放使用）
func EncodeBondingCurve(discriminator [8]byte, c BondingCurve) []byte {
	out := make([]byte, pumpfunCompleteOffset+1)
	copy(out[:pumpfunDiscriminatorLen], discriminator[:])
	body := out[pumpfunDiscriminatorLen:]
	binary.LittleEndian.PutUint64(body[0:8], c.VirtualTokenReserves)
	binary.LittleEndian.PutUint64(body[8:16], c.VirtualSolReserves)
	binary.LittleEndian.PutUint64(body[16:24], c.RealTokenReserves)
	binary.LittleEndian.PutUint64(body[24:32], c.RealSolReserves)
	binary.LittleEndian.PutUint64(out[pumpfunMinLen:pumpfunSupplyEnd], c.TokenTotalSupply)
	if c.Complete {
		out[pumpfunCompleteOffset] = 1
	}
	return out
}

// PumpfunSnapshot base = 代币储备, quote = SOL 储备
func PumpfunSnapshot(raw []byte, slot uint64) (model.ReserveSnapshot, error) {
	c, err := DecodeBondingCurve(raw)
	if err != nil {
		return model.ReserveSnapshot{}, err
	}
	base, quote := c.VirtualTokenReserves, c.VirtualSolReserves
	if c.Graduated() {
		base, quote = c.RealTokenReserves, c.RealSolReserves
		if base == 0 && quote == 0 {
			return model.ReserveSnapshot{}, model.ErrNotAvailable
		}
	}
	return model.ReserveSnapshot{
		BaseAmount:  base,
		QuoteAmount: quote,
		Timestamp:   time.Now(),
		Slot:        slot,
	}, nil
}
