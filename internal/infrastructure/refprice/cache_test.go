package refprice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRefreshKeepsLastValueOnError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "solana" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"solana":{"usd":151.25}}`))
	}))
	defer srv.Close()

	c := NewCache(srv.URL, time.Minute, time.Second)
	if c.SOLUSD() != 0 {
		t.Fatalf("expected zero before first refresh")
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if c.SOLUSD() != 151.25 {
		t.Errorf("expected 151.25, got %v", c.SOLUSD())
	}
	if c.UpdatedAt().IsZero() {
		t.Errorf("expected update time")
	}

	fail.Store(true)
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if c.SOLUSD() != 151.25 {
		t.Errorf("expected last value kept, got %v", c.SOLUSD())
	}
}

func TestRefreshRejectsInvalidPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"solana":{"usd":0}}`))
	}))
	defer srv.Close()

	c := NewCache(srv.URL, time.Minute, time.Second)
	c.Set(100)
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected error for zero price")
	}
	if c.SOLUSD() != 100 {
		t.Errorf("expected 100, got %v", c.SOLUSD())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"solana":{"usd":20}}`))
	}))
	defer srv.Close()

	c := NewCache(srv.URL, 10*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	if c.SOLUSD() != 20 {
		t.Errorf("expected 20, got %v", c.SOLUSD())
	}
}
