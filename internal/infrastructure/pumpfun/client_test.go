package pumpfun

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/MINT":
			w.Write([]byte(`{"mint":"MINT","bonding_curve":"CURVE","complete":true}`))
		case "/coins/EMPTY":
			w.Write([]byte(`{"mint":"EMPTY"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	info, err := c.Lookup(context.Background(), "MINT")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if info.BondingCurve != "CURVE" || !info.Complete {
		t.Errorf("unexpected info %+v", info)
	}

	if _, err := c.Lookup(context.Background(), "EMPTY"); err == nil {
		t.Error("expected error for empty bonding curve")
	}
	if _, err := c.Lookup(context.Background(), "OTHER"); err == nil {
		t.Error("expected error for unknown coin")
	}
}
