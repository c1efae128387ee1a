package composite

import (
	"context"
	"errors"
	"testing"
	"time"

	"solstream/internal/domain/model"
)

type mockRepo struct {
	quotes   []model.PriceQuote
	err      error
	closed   bool
	closeErr error
}

func (m *mockRepo) UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error {
	m.quotes = append(m.quotes, q)
	return m.err
}

func (m *mockRepo) Close() error {
	m.closed = true
	return m.closeErr
}

func TestCompositeFansOut(t *testing.T) {
	a, b := &mockRepo{err: errors.New("a down")}, &mockRepo{}
	r := New(a, nil, b)
	if r.Len() != 2 {
		t.Fatalf("expected nil repo filtered, got %d", r.Len())
	}

	err := r.UpsertLatestQuote(context.Background(), model.NewPriceQuote("T", 1, 0, time.Now(), "raydium"))
	if err == nil || err.Error() != "a down" {
		t.Errorf("expected first error, got %v", err)
	}
	if len(a.quotes) != 1 || len(b.quotes) != 1 {
		t.Errorf("write did not reach every repo")
	}
}

func TestCompositeCloseJoinsErrors(t *testing.T) {
	a, b := &mockRepo{closeErr: errors.New("boom")}, &mockRepo{}
	err := New(a, b).Close()
	if err == nil || !a.closed || !b.closed {
		t.Errorf("expected both closed with error, got %v", err)
	}
}
