package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseConfig() *Config {
	return &Config{Trade: TradeConfig{TokenAddress: "So11111111111111111111111111111111111111112"}}
}

func TestTradeDefaults(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	if cfg.Trade.BundleMode != "single" {
		t.Fatalf("expected default bundle mode single, got %q", cfg.Trade.BundleMode)
	}
	if cfg.Trade.SingleDelay != 200*time.Millisecond {
		t.Fatalf("expected single delay default, got %v", cfg.Trade.SingleDelay)
	}
	if cfg.Trade.BatchDelay != time.Second {
		t.Fatalf("expected batch delay default, got %v", cfg.Trade.BatchDelay)
	}
	if cfg.Trade.SlippageBps != 500 {
		t.Fatalf("expected slippage default, got %d", cfg.Trade.SlippageBps)
	}
	if cfg.Trade.TipLamports != 1_000_000 {
		t.Fatalf("expected tip default, got %d", cfg.Trade.TipLamports)
	}
}

func TestRelayDefaults(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	if cfg.Relay.RateLimit != 5 {
		t.Fatalf("expected rate limit default, got %d", cfg.Relay.RateLimit)
	}
	if cfg.Relay.RateWindow != time.Second {
		t.Fatalf("expected rate window default, got %v", cfg.Relay.RateWindow)
	}
	if cfg.Relay.Timeout <= 0 {
		t.Fatalf("expected relay timeout default, got %v", cfg.Relay.Timeout)
	}
}

func TestVolumeDefaults(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	if cfg.Volume.IntervalMin <= 0 || cfg.Volume.IntervalMax < cfg.Volume.IntervalMin {
		t.Fatalf("unexpected interval defaults: %v / %v", cfg.Volume.IntervalMin, cfg.Volume.IntervalMax)
	}
	if cfg.Volume.BuyBias != 0.6 {
		t.Fatalf("expected buy bias default 0.6, got %v", cfg.Volume.BuyBias)
	}
	if cfg.Volume.MinAmount <= 0 || cfg.Volume.MaxAmount < cfg.Volume.MinAmount {
		t.Fatalf("unexpected amount defaults: %v / %v", cfg.Volume.MinAmount, cfg.Volume.MaxAmount)
	}
}

func TestFeeDefaultsFromCollector(t *testing.T) {
	cfg := baseConfig()
	cfg.Fee.Collector = "FeeCo11111111111111111111111111111111111111"
	applyDefaults(cfg)
	if !cfg.Fee.EnabledValue() {
		t.Fatalf("expected fee enabled when collector is set")
	}
	if cfg.Fee.Lamports != 30_000_000 {
		t.Fatalf("expected fee lamports default, got %d", cfg.Fee.Lamports)
	}
}

func TestFeeDisabledWithoutCollector(t *testing.T) {
	cfg := baseConfig()
	applyDefaults(cfg)
	if cfg.Fee.EnabledValue() {
		t.Fatalf("expected fee disabled without collector")
	}
}

func TestValidateRequiresToken(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing token address")
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := baseConfig()
	cfg.Trade.BundleMode = "turbo"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown bundle mode")
	}
}

func TestValidateRejectsInvertedIntervals(t *testing.T) {
	cfg := baseConfig()
	cfg.Volume.IntervalMin = time.Minute
	cfg.Volume.IntervalMax = time.Second
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for inverted intervals")
	}
}

func TestValidateRejectsFeeWithoutCollector(t *testing.T) {
	enabled := true
	cfg := baseConfig()
	cfg.Fee.Enabled = &enabled
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for fee without collector")
	}
}

func TestValidateRejectsHistoryWithoutDSN(t *testing.T) {
	cfg := baseConfig()
	cfg.History.Enabled = true
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for history without dsn")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  level: debug
builder:
  base_url: https://builder.example
relay:
  base_url: https://relay.example
  rate_limit: 3
trade:
  token_address: So11111111111111111111111111111111111111112
  bundle_mode: batch
volume:
  interval_min: 5s
  interval_max: 10s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
	if cfg.Relay.RateLimit != 3 {
		t.Fatalf("expected rate limit 3, got %d", cfg.Relay.RateLimit)
	}
	if cfg.Trade.BundleMode != "batch" {
		t.Fatalf("expected batch mode, got %q", cfg.Trade.BundleMode)
	}
	if cfg.Volume.IntervalMin != 5*time.Second || cfg.Volume.IntervalMax != 10*time.Second {
		t.Fatalf("unexpected intervals: %v / %v", cfg.Volume.IntervalMin, cfg.Volume.IntervalMax)
	}
}
