package locator

import (
	"strings"
	"testing"
)

func TestBuildProbesDefaultOrder(t *testing.T) {
	probes, err := BuildProbes(nil, ProbeDeps{PumpfunProgram: PumpfunProgramID, RaydiumProgram: RaydiumAMMProgramID})
	if err != nil {
		t.Fatalf("BuildProbes failed: %v", err)
	}
	var names []string
	for _, p := range probes {
		names = append(names, p.Name)
	}
	if strings.Join(names, ",") != "aggregator,bonding_curve,amm_scan" {
		t.Errorf("unexpected probe order %v", names)
	}
}

func TestBuildProbesCustomOrder(t *testing.T) {
	probes, err := BuildProbes([]string{"bonding_curve", "aggregator"}, ProbeDeps{})
	if err != nil {
		t.Fatalf("BuildProbes failed: %v", err)
	}
	if len(probes) != 2 || probes[0].Name != "bonding_curve" {
		t.Errorf("unexpected probes %+v", probes)
	}
}

func TestBuildProbesRejectsUnknownAndDuplicate(t *testing.T) {
	if _, err := BuildProbes([]string{"orca"}, ProbeDeps{}); err == nil {
		t.Error("expected error for unknown probe")
	}
	if _, err := BuildProbes([]string{"aggregator", "aggregator"}, ProbeDeps{}); err == nil {
		t.Error("expected error for duplicate probe")
	}
}
