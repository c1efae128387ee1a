package svc

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"solstream/internal/infrastructure/config"
)

func TestNewWiresComponents(t *testing.T) {
	cfg, err := config.Parse(`
[storage.sqlite]
enabled = true
path = "` + filepath.ToSlash(filepath.Join(t.TempDir(), "quotes.db")) + `"

[metrics]
enabled = true

[locator]
probes = ["bonding_curve", "aggregator"]
`)
	if err != nil {
		t.Fatalf("config parse failed: %v", err)
	}

	sc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer sc.Close()

	if sc.Locator == nil || sc.Stream == nil || sc.Gateway == nil || sc.Upstream == nil || sc.RefPrice == nil {
		t.Fatal("expected all components to be initialized")
	}
	if got := strings.Join(sc.Locator.Probes(), ","); got != "bonding_curve,aggregator" {
		t.Errorf("probe order not applied: %s", got)
	}
	if len(sc.repos) != 1 {
		t.Errorf("expected sqlite repo only, got %d repos", len(sc.repos))
	}
	if st := sc.Stream.Stats(); st.Pools != 0 || st.Clients != 0 {
		t.Errorf("fresh stream should be empty, got %+v", st)
	}
}

func TestNewRejectsBadProgram(t *testing.T) {
	cfg, err := config.Parse("[locator]\npumpfun_program = \"bad!\"")
	if err != nil {
		t.Fatalf("config parse failed: %v", err)
	}
	_, err = New(context.Background(), cfg)
	if !errors.Is(err, ErrInvalidProgram) {
		t.Errorf("expected ErrInvalidProgram, got %v", err)
	}
}
