package model

// Venue 流动性来源类型
type Venue int

const (
	VenueUnresolved Venue = iota
	VenueRaydiumAMM
	VenuePumpfunBondingCurve
	VenueGenericDexPair
)

func (v Venue) String() string {
	switch v {
	case VenueRaydiumAMM:
		return "raydium"
	case VenuePumpfunBondingCurve:
		return "pumpfun"
	case VenueGenericDexPair:
		return "dex"
	default:
		return "unresolved"
	}
}
