package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solstream/internal/domain/model"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"value":42}`))
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New("test", srv.URL+"/", time.Second)

	var out struct {
		Value int `json:"value"`
	}
	if err := c.GetJSON(context.Background(), "/ok", &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Value != 42 {
		t.Errorf("expected 42, got %d", out.Value)
	}

	if err := c.GetJSON(context.Background(), "/limited", &out); !errors.Is(err, model.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if err := c.GetJSON(context.Background(), "/missing", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New("flaky", srv.URL, time.Second)
	var out map[string]interface{}
	var lastErr error
	for i := 0; i < breakerMinCalls+2; i++ {
		lastErr = c.GetJSON(context.Background(), "/", &out)
	}
	if lastErr == nil {
		t.Fatal("expected error")
	}
	if got := c.breaker.State().String(); got != "open" {
		t.Errorf("expected open breaker, got %s", got)
	}
}
