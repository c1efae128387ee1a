package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerTicksAndCancels(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Interval: 20 * time.Millisecond, ReadsPerSecond: 1000, Burst: 10})

	var ticks atomic.Int32
	if !s.Schedule(context.Background(), "pool", func(ctx context.Context) { ticks.Add(1) }) {
		t.Fatal("Schedule returned false")
	}
	if s.Schedule(context.Background(), "pool", func(ctx context.Context) {}) {
		t.Error("duplicate Schedule should return false")
	}

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
	}

	s.Cancel("pool")
	if s.Running("pool") || s.Len() != 0 {
		t.Errorf("timer still registered after cancel")
	}
	after := ticks.Load()
	time.Sleep(60 * time.Millisecond)
	if ticks.Load() != after {
		t.Errorf("tick fired after cancel")
	}

	s.Cancel("pool")
}

func TestSchedulerCancelWaitsForTick(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Interval: 200 * time.Millisecond, ReadsPerSecond: 1000, Burst: 10})

	started := make(chan struct{})
	var finished atomic.Bool
	s.Schedule(context.Background(), "slow", func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		finished.Store(true)
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("tick never started")
	}
	s.Cancel("slow")
	if !finished.Load() {
		t.Errorf("Cancel returned before tick exited")
	}
}

func TestSchedulerStopAll(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Interval: time.Second})
	for _, k := range []string{"a", "b", "c"} {
		s.Schedule(context.Background(), k, func(ctx context.Context) {})
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 timers, got %d", s.Len())
	}
	s.StopAll()
	if s.Len() != 0 {
		t.Errorf("expected 0 timers, got %d", s.Len())
	}
}

func TestNextDelayWithinJitter(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Interval: 100 * time.Millisecond, Jitter: 20 * time.Millisecond})
	for i := 0; i < 100; i++ {
		d := s.nextDelay()
		if d < 80*time.Millisecond || d >= 120*time.Millisecond {
			t.Fatalf("delay %v out of range", d)
		}
	}
}
