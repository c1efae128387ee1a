package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		Name     string `toml:"name"`
		LogLevel string `toml:"log_level"`
	} `toml:"app"`

	Gateway struct {
		Listen             string `toml:"listen"`
		Path               string `toml:"path"`
		ClientBuffer       int    `toml:"client_buffer"`
		SubscribeTimeoutMs int    `toml:"subscribe_timeout_ms"`
		MaxMessageBytes    int64  `toml:"max_message_bytes"`
	} `toml:"gateway"`

	Solana struct {
		RPCURL           string `toml:"rpc_url"`
		WsURL            string `toml:"ws_url"`
		Commitment       string `toml:"commitment"`
		RequestTimeoutMs int    `toml:"request_timeout_ms"`
	} `toml:"solana"`

	Upstream struct {
		MaxRetries     int `toml:"max_retries"`
		InitialDelayMs int `toml:"initial_delay_ms"`
		MaxDelayMs     int `toml:"max_delay_ms"`
		QueueSize      int `toml:"queue_size"`
	} `toml:"upstream"`

	Polling struct {
		IntervalMs     int     `toml:"interval_ms"`
		JitterMs       int     `toml:"jitter_ms"`
		ReadsPerSecond float64 `toml:"reads_per_second"`
		Burst          int     `toml:"burst"`
		// PushReadMs 同一个池推送触发读取的最小间隔
		PushReadMs int `toml:"push_read_ms"`
	} `toml:"polling"`

	Locator struct {
		AggregatorURL  string `toml:"aggregator_url"`
		PumpfunAPIURL  string `toml:"pumpfun_api_url"`
		PumpfunProgram string `toml:"pumpfun_program"`
		RaydiumProgram string `toml:"raydium_program"`
		ProbeTimeoutMs int    `toml:"probe_timeout_ms"`
		HTTPTimeoutMs  int    `toml:"http_timeout_ms"`
		// Probes 探测顺序，为空时 aggregator, bonding_curve, amm_scan
		Probes []string `toml:"probes"`
	} `toml:"locator"`

	ReferencePrice struct {
		URL        string `toml:"url"`
		RefreshSec int    `toml:"refresh_sec"`
		TimeoutMs  int    `toml:"timeout_ms"`
	} `toml:"reference_price"`

	Workers struct {
		Count     int `toml:"count"`
		QueueSize int `toml:"queue_size"`
	} `toml:"workers"`

	Storage struct {
		Console struct {
			Enabled bool `toml:"enabled"`
		} `toml:"console"`

		Redis struct {
			Enabled       bool   `toml:"enabled"`
			Addr          string `toml:"addr"`
			Password      string `toml:"password"`
			DB            int    `toml:"db"`
			Prefix        string `toml:"prefix"`
			TTLSeconds    int    `toml:"ttl_seconds"`
			UpdateChannel string `toml:"update_channel"`
		} `toml:"redis"`

		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"metrics"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse 从字符串解析，测试和嵌入式配置使用
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "solstream"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}

	if cfg.Gateway.Listen == "" {
		cfg.Gateway.Listen = ":8080"
	}
	if cfg.Gateway.Path == "" {
		cfg.Gateway.Path = "/ws"
	}
	if cfg.Gateway.ClientBuffer <= 0 {
		cfg.Gateway.ClientBuffer = 64
	}
	if cfg.Gateway.SubscribeTimeoutMs <= 0 {
		cfg.Gateway.SubscribeTimeoutMs = 15000
	}
	if cfg.Gateway.MaxMessageBytes <= 0 {
		cfg.Gateway.MaxMessageBytes = 4096
	}

	if cfg.Solana.RPCURL == "" {
		cfg.Solana.RPCURL = "https://api.mainnet-beta.solana.com"
	}
	if cfg.Solana.WsURL == "" {
		cfg.Solana.WsURL = "wss://api.mainnet-beta.solana.com"
	}
	if cfg.Solana.Commitment == "" {
		cfg.Solana.Commitment = "confirmed"
	}
	if cfg.Solana.RequestTimeoutMs <= 0 {
		cfg.Solana.RequestTimeoutMs = 10000
	}

	if cfg.Upstream.MaxRetries <= 0 {
		cfg.Upstream.MaxRetries = 8
	}
	if cfg.Upstream.InitialDelayMs <= 0 {
		cfg.Upstream.InitialDelayMs = 500
	}
	if cfg.Upstream.MaxDelayMs <= 0 {
		cfg.Upstream.MaxDelayMs = 10000
	}
	if cfg.Upstream.QueueSize <= 0 {
		cfg.Upstream.QueueSize = 1024
	}

	if cfg.Polling.IntervalMs <= 0 {
		cfg.Polling.IntervalMs = 10000
	}
	if cfg.Polling.JitterMs <= 0 {
		cfg.Polling.JitterMs = cfg.Polling.IntervalMs / 10
	}
	if cfg.Polling.ReadsPerSecond <= 0 {
		cfg.Polling.ReadsPerSecond = 10
	}
	if cfg.Polling.Burst <= 0 {
		cfg.Polling.Burst = 5
	}
	if cfg.Polling.PushReadMs <= 0 {
		cfg.Polling.PushReadMs = 1000
	}

	if cfg.Locator.AggregatorURL == "" {
		cfg.Locator.AggregatorURL = "https://api.dexscreener.com"
	}
	if cfg.Locator.PumpfunAPIURL == "" {
		cfg.Locator.PumpfunAPIURL = "https://frontend-api.pump.fun"
	}
	if cfg.Locator.ProbeTimeoutMs <= 0 {
		cfg.Locator.ProbeTimeoutMs = 8000
	}
	if cfg.Locator.HTTPTimeoutMs <= 0 {
		cfg.Locator.HTTPTimeoutMs = 5000
	}

	if cfg.ReferencePrice.URL == "" {
		cfg.ReferencePrice.URL = "https://api.coingecko.com"
	}
	if cfg.ReferencePrice.RefreshSec <= 0 {
		cfg.ReferencePrice.RefreshSec = 45
	}
	if cfg.ReferencePrice.TimeoutMs <= 0 {
		cfg.ReferencePrice.TimeoutMs = 5000
	}

	if cfg.Workers.Count <= 0 {
		cfg.Workers.Count = 4
	}
	if cfg.Workers.QueueSize <= 0 {
		cfg.Workers.QueueSize = 256
	}

	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "solstream"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/solstream.db"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if !strings.HasPrefix(cfg.Gateway.Path, "/") {
		return fmt.Errorf("gateway.path must start with '/': %q", cfg.Gateway.Path)
	}
	if err := checkURL("solana.rpc_url", cfg.Solana.RPCURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("solana.ws_url", cfg.Solana.WsURL, "ws", "wss"); err != nil {
		return err
	}
	switch cfg.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("solana.commitment invalid: %q", cfg.Solana.Commitment)
	}
	if cfg.Upstream.InitialDelayMs > cfg.Upstream.MaxDelayMs {
		return errors.New("upstream.initial_delay_ms greater than max_delay_ms")
	}
	if cfg.Polling.JitterMs >= cfg.Polling.IntervalMs {
		return errors.New("polling.jitter_ms must be less than interval_ms")
	}
	if err := validateProbes(cfg.Locator.Probes); err != nil {
		return err
	}
	// 30-60s 的刷新区间
	if cfg.ReferencePrice.RefreshSec < 30 || cfg.ReferencePrice.RefreshSec > 60 {
		return fmt.Errorf("reference_price.refresh_sec out of range [30,60]: %d", cfg.ReferencePrice.RefreshSec)
	}

	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	if cfg.Metrics.Enabled && (!strings.HasPrefix(cfg.Metrics.Path, "/") || cfg.Metrics.Path == cfg.Gateway.Path) {
		return fmt.Errorf("metrics.path invalid: %q", cfg.Metrics.Path)
	}
	return nil
}

var knownProbes = map[string]struct{}{
	"aggregator":    {},
	"bonding_curve": {},
	"amm_scan":      {},
}

func validateProbes(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := knownProbes[n]; !ok {
			return fmt.Errorf("locator.probes unknown probe: %q", n)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("locator.probes duplicate probe: %q", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must use scheme %s: %q", field, strings.Join(schemes, "/"), raw)
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c *Config) SubscribeTimeout() time.Duration { return ms(c.Gateway.SubscribeTimeoutMs) }
func (c *Config) RequestTimeout() time.Duration   { return ms(c.Solana.RequestTimeoutMs) }
func (c *Config) PollInterval() time.Duration     { return ms(c.Polling.IntervalMs) }
func (c *Config) PollJitter() time.Duration       { return ms(c.Polling.JitterMs) }
func (c *Config) PushReadInterval() time.Duration { return ms(c.Polling.PushReadMs) }
func (c *Config) ProbeTimeout() time.Duration     { return ms(c.Locator.ProbeTimeoutMs) }
func (c *Config) HTTPTimeout() time.Duration      { return ms(c.Locator.HTTPTimeoutMs) }
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.ReferencePrice.RefreshSec) * time.Second
}
