package svc

import (
	"context"
	"fmt"
	"os"
	"time"

	sol "github.com/gagliardetto/solana-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"solstream/internal/application/locator"
	"solstream/internal/application/port"
	"solstream/internal/application/service"
	"solstream/internal/application/usecase/stream"
	"solstream/internal/infrastructure/aggregator"
	"solstream/internal/infrastructure/config"
	"solstream/internal/infrastructure/pumpfun"
	"solstream/internal/infrastructure/refprice"
	"solstream/internal/infrastructure/solana"
	"solstream/internal/infrastructure/storage/composite"
	pgrepo "solstream/internal/infrastructure/storage/postgres"
	redisrepo "solstream/internal/infrastructure/storage/redis"
	sqliterepo "solstream/internal/infrastructure/storage/sqlite"
	"solstream/internal/infrastructure/websocket"
	"solstream/internal/interfaces/console"
	"solstream/internal/interfaces/gateway"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层
	Chain      *solana.RPCClient
	Aggregator *aggregator.DexScreener
	Pumpfun    *pumpfun.Client
	RefPrice   *refprice.Cache
	Upstream   *websocket.Supervisor
	repos      []port.QuoteRepository

	// 应用层
	Locator *locator.Locator
	Prices  *service.PriceService
	Stream  *stream.Service

	// 接口层
	Gateway *gateway.Server

	// 资源管理
	closerChain []func() error
}

// New 按依赖顺序初始化所有组件
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	cfg := sc.Config

	// 0. 存储层
	if err := sc.initializeStorage(); err != nil {
		return err
	}
	sc.Prices = service.NewPriceService(composite.New(sc.repos...))

	// 1. 外部数据源
	sc.Chain = solana.NewRPCClient(cfg.Solana.RPCURL, cfg.Solana.Commitment, cfg.RequestTimeout())
	sc.Aggregator = aggregator.NewDexScreener(cfg.Locator.AggregatorURL, cfg.HTTPTimeout())
	sc.Pumpfun = pumpfun.NewClient(cfg.Locator.PumpfunAPIURL, cfg.HTTPTimeout())
	sc.RefPrice = refprice.NewCache(cfg.ReferencePrice.URL, cfg.RefreshInterval(), time.Duration(cfg.ReferencePrice.TimeoutMs)*time.Millisecond)

	// 2. 池定位：聚合器 -> bonding curve -> AMM 扫描
	if err := sc.initializeLocator(); err != nil {
		return err
	}

	// 3. 上游连接
	sc.Upstream = websocket.NewSupervisor(websocket.Options{
		URL:        cfg.Solana.WsURL,
		Commitment: cfg.Solana.Commitment,
		Retry: websocket.RetryConfig{
			MaxRetries: cfg.Upstream.MaxRetries,
			InitialDel: time.Duration(cfg.Upstream.InitialDelayMs) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.Upstream.MaxDelayMs) * time.Millisecond,
		},
		RequestTimeout: cfg.RequestTimeout(),
		QueueSize:      cfg.Upstream.QueueSize,
	})

	// 4. 订阅复用
	sc.Stream = stream.NewService(stream.ServiceDeps{
		Locator:  sc.Locator,
		Upstream: sc.Upstream,
		Quoter:   stream.NewPricer(sc.Chain, sc.Aggregator, sc.RefPrice),
		Scheduler: stream.NewScheduler(stream.SchedulerConfig{
			Interval:       cfg.PollInterval(),
			Jitter:         cfg.PollJitter(),
			ReadsPerSecond: cfg.Polling.ReadsPerSecond,
			Burst:          cfg.Polling.Burst,
		}),
		Prices:           sc.Prices,
		Workers:          cfg.Workers.Count,
		Queue:            cfg.Workers.QueueSize,
		PushReadInterval: cfg.PushReadInterval(),
	})

	// 5. 下游网关
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	sc.Gateway = gateway.NewServer(sc.Stream, gateway.Options{
		Path:             cfg.Gateway.Path,
		ClientBuffer:     cfg.Gateway.ClientBuffer,
		SubscribeTimeout: cfg.SubscribeTimeout(),
		MaxMessageBytes:  cfg.Gateway.MaxMessageBytes,
		MetricsPath:      metricsPath,
		Health:           func() any { return sc.Stream.Stats() },
	})

	log.Info().
		Int("repos", len(sc.repos)).
		Int("workers", cfg.Workers.Count).
		Msg("✓ All components initialized")
	return nil
}

func (sc *ServiceContext) initializeLocator() error {
	cfg := sc.Config
	pumpProgram, err := programOrDefault(cfg.Locator.PumpfunProgram, locator.PumpfunProgramID)
	if err != nil {
		return err
	}
	raydiumProgram, err := programOrDefault(cfg.Locator.RaydiumProgram, locator.RaydiumAMMProgramID)
	if err != nil {
		return err
	}

	probes, err := locator.BuildProbes(cfg.Locator.Probes, locator.ProbeDeps{
		Aggregator:     sc.Aggregator,
		CurveAPI:       sc.Pumpfun,
		Chain:          sc.Chain,
		PumpfunProgram: pumpProgram,
		RaydiumProgram: raydiumProgram,
	})
	if err != nil {
		return fmt.Errorf("locator: %w", err)
	}
	sc.Locator = locator.New(cfg.ProbeTimeout(), probes...)
	return nil
}

func programOrDefault(raw string, def sol.PublicKey) (sol.PublicKey, error) {
	if raw == "" {
		return def, nil
	}
	pk, err := sol.PublicKeyFromBase58(raw)
	if err != nil {
		return sol.PublicKey{}, fmt.Errorf("%w: %q: %v", ErrInvalidProgram, raw, err)
	}
	return pk, nil
}

// initializeStorage 初始化最新报价导出 (Redis / SQLite / Postgres)
func (sc *ServiceContext) initializeStorage() error {
	st := sc.Config.Storage
	if st.Console.Enabled {
		sc.repos = append(sc.repos, console.NewSink(os.Stdout))
	}
	if st.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("%w: redis: %v", ErrStorageInitFailed, err)
		}
	}
	if st.SQLite.Enabled {
		if err := sc.initSQLite(); err != nil {
			return fmt.Errorf("%w: sqlite: %v", ErrStorageInitFailed, err)
		}
	}
	if st.Postgres.Enabled {
		if err := sc.initPostgres(); err != nil {
			return fmt.Errorf("%w: postgres: %v", ErrStorageInitFailed, err)
		}
	}
	return nil
}

func (sc *ServiceContext) initRedis() error {
	cfg := sc.Config.Storage.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	repo := redisrepo.New(rdb, cfg.Prefix, time.Duration(cfg.TTLSeconds)*time.Second, cfg.UpdateChannel)
	sc.repos = append(sc.repos, repo)
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return repo.Close()
	})

	log.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("✓ Redis initialized")
	return nil
}

func (sc *ServiceContext) initSQLite() error {
	path := sc.Config.Storage.SQLite.Path
	repo, err := sqliterepo.New(path)
	if err != nil {
		return fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.repos = append(sc.repos, repo)
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().Str("path", path).Msg("✓ SQLite initialized")
	return nil
}

func (sc *ServiceContext) initPostgres() error {
	repo, err := pgrepo.New(sc.Config.Storage.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres repo creation failed: %w", err)
	}
	sc.repos = append(sc.repos, repo)
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return nil
}

// Close 按相反顺序关闭所有资源
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
