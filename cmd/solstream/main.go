package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"solstream/internal/infrastructure/config"
	"solstream/internal/infrastructure/logger"
	"solstream/internal/infrastructure/svc"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	logger.Setup("info")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context initialization failed")
	}
	defer sc.Close()

	log.Info().
		Str("config", *configPath).
		Str("listen", cfg.Gateway.Listen).
		Str("rpc", cfg.Solana.RPCURL).
		Str("commitment", cfg.Solana.Commitment).
		Msg("solstream started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sc.Upstream.Run(gctx) })
	g.Go(func() error { return sc.RefPrice.Run(gctx) })
	g.Go(func() error { return sc.Stream.Run(gctx) })
	g.Go(func() error { return sc.Gateway.Run(gctx, cfg.Gateway.Listen) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("solstream exited")
		return
	}
	log.Info().Msg("solstream stopped")
}
