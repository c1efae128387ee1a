// Package locator resolves a token mint to the liquidity pool its price is read from.
package locator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"solstream/internal/domain/model"
	"solstream/internal/infrastructure/metrics"
)

const defaultProbeTimeout = 5 * time.Second

// Locator 按顺序探测 venue，并缓存 PoolHandle（仅缓存成功结果）
type Locator struct {
	probes       []Probe
	probeTimeout time.Duration

	mu    sync.RWMutex
	cache map[solana.PublicKey]model.PoolHandle

	group singleflight.Group
}

func New(probeTimeout time.Duration, probes ...Probe) *Locator {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &Locator{
		probes:       probes,
		probeTimeout: probeTimeout,
		cache:        make(map[solana.PublicKey]model.PoolHandle),
	}
}

// Resolve 返回缓存的 PoolHandle；首次调用时依次执行探测，第一个 Found 即返回
func (l *Locator) Resolve(ctx context.Context, token solana.PublicKey) (model.PoolHandle, error) {
	if h, ok := l.Cached(token); ok {
		return h, nil
	}

	// 共享的探测不继承首个调用者的取消，只受探测超时约束
	ch := l.group.DoChan(token.String(), func() (interface{}, error) {
		if h, ok := l.Cached(token); ok {
			return h, nil
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.probeTimeout*time.Duration(len(l.probes)))
		defer cancel()
		h, err := l.probe(sctx, token)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[token] = h
		l.mu.Unlock()
		return h, nil
	})

	select {
	case <-ctx.Done():
		return model.PoolHandle{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return model.PoolHandle{}, r.Err
		}
		return r.Val.(model.PoolHandle), nil
	}
}

func (l *Locator) probe(ctx context.Context, token solana.PublicKey) (model.PoolHandle, error) {
	for _, p := range l.probes {
		pctx, cancel := context.WithTimeout(ctx, l.probeTimeout)
		res := p.Run(pctx, token)
		cancel()

		switch res.Outcome {
		case OutcomeFound:
			h := res.Handle
			h.TargetMint = token
			metrics.ResolveTotal.WithLabelValues(h.Venue.String()).Inc()
			log.Info().
				Str("token", token.String()).
				Str("probe", p.Name).
				Str("venue", h.Venue.String()).
				Str("pool", h.PoolAddress.String()).
				Msg("pool resolved")
			return h, nil
		case OutcomeError:
			metrics.ProbeErrors.WithLabelValues(p.Name).Inc()
			log.Debug().
				Err(fmt.Errorf("%w: %v", model.ErrVenueUnavailable, res.Err)).
				Str("token", token.String()).
				Str("probe", p.Name).
				Msg("probe failed, trying next")
		}

		if err := ctx.Err(); err != nil {
			return model.PoolHandle{}, err
		}
	}

	metrics.ResolveTotal.WithLabelValues(model.VenueUnresolved.String()).Inc()
	return model.PoolHandle{}, fmt.Errorf("%w: %s", model.ErrPoolNotFound, token)
}

// Probes 当前探测顺序
func (l *Locator) Probes() []string {
	names := make([]string, 0, len(l.probes))
	for _, p := range l.probes {
		names = append(names, p.Name)
	}
	return names
}

// Cached 只读缓存
func (l *Locator) Cached(token solana.PublicKey) (model.PoolHandle, bool) {
	l.mu.RLock()
	h, ok := l.cache[token]
	l.mu.RUnlock()
	return h, ok
}

// Invalidate 显式失效，下一次 Resolve 重新探测
func (l *Locator) Invalidate(token solana.PublicKey) {
	l.mu.Lock()
	delete(l.cache, token)
	l.mu.Unlock()
}

// Len 缓存条目数
func (l *Locator) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}
