package locator

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"solstream/internal/application/port"
)

// ProbeDeps 构造探测所需的外部依赖
type ProbeDeps struct {
	Aggregator     port.LiquidityAggregator
	CurveAPI       port.BondingCurveAPI
	Chain          port.ChainReader
	PumpfunProgram solana.PublicKey
	RaydiumProgram solana.PublicKey
}

// ProbeFactory 按名称构造探测
type ProbeFactory func(deps ProbeDeps) Probe

// DefaultProbeOrder 聚合器 -> bonding curve -> AMM 扫描
var DefaultProbeOrder = []string{probeNameAggregator, probeNameBondingCurve, probeNameAMMScan}

var registry = make(map[string]ProbeFactory)

func init() {
	Register(probeNameAggregator, func(d ProbeDeps) Probe { return AggregatorProbe(d.Aggregator) })
	Register(probeNameBondingCurve, func(d ProbeDeps) Probe {
		return BondingCurveProbe(d.CurveAPI, d.Chain, d.PumpfunProgram)
	})
	Register(probeNameAMMScan, func(d ProbeDeps) Probe { return AMMScanProbe(d.Chain, d.RaydiumProgram) })
}

// Register 注册一个探测工厂，同名覆盖
func Register(name string, factory ProbeFactory) {
	if factory == nil {
		log.Warn().Str("probe", name).Msg("invalid probe factory")
		return
	}
	if _, exists := registry[name]; exists {
		log.Warn().Str("probe", name).Msg("probe factory already registered, overwriting")
	}
	registry[name] = factory
}

func Get(name string) (ProbeFactory, bool) {
	f, ok := registry[name]
	return f, ok
}

// BuildProbes 按给定顺序构造探测链；names 为空时使用默认顺序
func BuildProbes(names []string, deps ProbeDeps) ([]Probe, error) {
	if len(names) == 0 {
		names = DefaultProbeOrder
	}
	seen := make(map[string]struct{}, len(names))
	probes := make([]Probe, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate probe %q", name)
		}
		seen[name] = struct{}{}
		f, ok := Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown probe %q", name)
		}
		probes = append(probes, f(deps))
	}
	return probes, nil
}
