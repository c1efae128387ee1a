package layout

import "solstream/internal/domain/model"

// SPL Mint 账户布局中 decimals 的偏移
const mintDecimalsOffset = 44

// DecodeMintDecimals 读取 mint 精度
func DecodeMintDecimals(raw []byte) (uint8, error) {
	if len(raw) <= mintDecimalsOffset {
		return 0, model.NewDecodeError(model.VenueUnresolved, "mint account too short: %d", len(raw))
	}
	return raw[mintDecimalsOffset], nil
}
