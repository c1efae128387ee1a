package stream

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultReadsPerSec  = 10
	defaultBurst        = 5
)

// SchedulerConfig 轮询参数
type SchedulerConfig struct {
	Interval       time.Duration
	Jitter         time.Duration
	ReadsPerSecond float64
	Burst          int
}

// Timer 单个池的轮询句柄
type Timer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Wait 等待轮询协程退出；nil 句柄直接返回
func (t *Timer) Wait() {
	if t == nil {
		return
	}
	<-t.done
}

// Scheduler 每个 PoolSubscription 一个可取消的轮询协程，所有读取共享一个限流器
type Scheduler struct {
	interval time.Duration
	jitter   time.Duration
	limiter  *rate.Limiter

	mu     sync.Mutex
	timers map[string]*Timer
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if cfg.Jitter < 0 || cfg.Jitter >= cfg.Interval {
		cfg.Jitter = cfg.Interval / 10
	}
	if cfg.ReadsPerSecond <= 0 {
		cfg.ReadsPerSecond = defaultReadsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	return &Scheduler{
		interval: cfg.Interval,
		jitter:   cfg.Jitter,
		limiter:  rate.NewLimiter(rate.Limit(cfg.ReadsPerSecond), cfg.Burst),
		timers:   make(map[string]*Timer),
	}
}

// Wait 推送路径的外部读取与轮询共享同一个限流器
func (s *Scheduler) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

// Interval 基础轮询周期
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Schedule 启动轮询；key 已存在时返回 false
func (s *Scheduler) Schedule(parent context.Context, key string, tick func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[key]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	t := &Timer{cancel: cancel, done: make(chan struct{})}
	s.timers[key] = t
	go s.loop(ctx, t, tick)
	return true
}

func (s *Scheduler) loop(ctx context.Context, t *Timer, tick func(ctx context.Context)) {
	defer close(t.done)

	// 随机初始偏移，避免所有池同时读取
	delay := time.Duration(rand.Int64N(int64(s.interval)))
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		tctx, cancel := context.WithTimeout(ctx, s.interval)
		tick(tctx)
		cancel()

		timer.Reset(s.nextDelay())
	}
}

func (s *Scheduler) nextDelay() time.Duration {
	if s.jitter <= 0 {
		return s.interval
	}
	offset := time.Duration(rand.Int64N(int64(2*s.jitter))) - s.jitter
	return s.interval + offset
}

// Stop 移除并取消，不等待；调用方持锁时使用，之后在锁外调用 Wait
func (s *Scheduler) Stop(key string) *Timer {
	s.mu.Lock()
	t, ok := s.timers[key]
	delete(s.timers, key)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	t.cancel()
	return t
}

// Cancel 取消并等待轮询协程退出
func (s *Scheduler) Cancel(key string) {
	s.Stop(key).Wait()
}

// StopAll 取消全部并等待
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	timers := s.timers
	s.timers = make(map[string]*Timer)
	s.mu.Unlock()
	for _, t := range timers {
		t.cancel()
	}
	for _, t := range timers {
		t.Wait()
	}
}

func (s *Scheduler) Running(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
