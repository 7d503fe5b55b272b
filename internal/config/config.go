package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	Builder  BuilderConfig  `yaml:"builder"`
	Relay    RelayConfig    `yaml:"relay"`
	Wallets  WalletsConfig  `yaml:"wallets"`
	Trade    TradeConfig    `yaml:"trade"`
	Fee      FeeConfig      `yaml:"fee"`
	Volume   VolumeConfig   `yaml:"volume"`
	State    StateConfig    `yaml:"state"`
	History  HistoryConfig  `yaml:"history"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type BuilderConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type RelayConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type WalletsConfig struct {
	File           string        `yaml:"file"`
	ServiceURL     string        `yaml:"service_url"`
	ServiceTimeout time.Duration `yaml:"service_timeout"`
}

type TradeConfig struct {
	TokenAddress string        `yaml:"token_address"`
	Protocol     string        `yaml:"protocol"`
	SlippageBps  int           `yaml:"slippage_bps"`
	TipLamports  uint64        `yaml:"tip_lamports"`
	BundleMode   string        `yaml:"bundle_mode"`
	BatchDelay   time.Duration `yaml:"batch_delay"`
	SingleDelay  time.Duration `yaml:"single_delay"`
}

type FeeConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	Lamports  uint64 `yaml:"lamports"`
	Collector string `yaml:"collector"`
}

func (f FeeConfig) EnabledValue() bool {
	return f.Enabled != nil && *f.Enabled
}

type VolumeConfig struct {
	IntervalMin time.Duration `yaml:"interval_min"`
	IntervalMax time.Duration `yaml:"interval_max"`
	MinAmount   float64       `yaml:"min_amount"`
	MaxAmount   float64       `yaml:"max_amount"`
	SellPercent float64       `yaml:"sell_percent"`
	BuyBias     float64       `yaml:"buy_bias"`
	Duration    time.Duration `yaml:"duration"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type HistoryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Builder.Timeout == 0 {
		cfg.Builder.Timeout = 15 * time.Second
	}
	if cfg.Relay.Timeout == 0 {
		cfg.Relay.Timeout = 15 * time.Second
	}
	if cfg.Relay.RateLimit == 0 {
		cfg.Relay.RateLimit = 5
	}
	if cfg.Relay.RateWindow == 0 {
		cfg.Relay.RateWindow = time.Second
	}
	if cfg.Wallets.File == "" {
		cfg.Wallets.File = "data/wallets.json"
	}
	if cfg.Wallets.ServiceTimeout == 0 {
		cfg.Wallets.ServiceTimeout = 10 * time.Second
	}
	if cfg.Trade.Protocol == "" {
		cfg.Trade.Protocol = "pump"
	}
	if cfg.Trade.SlippageBps == 0 {
		cfg.Trade.SlippageBps = 500
	}
	if cfg.Trade.TipLamports == 0 {
		cfg.Trade.TipLamports = 1_000_000
	}
	if cfg.Trade.BundleMode == "" {
		cfg.Trade.BundleMode = "single"
	}
	if cfg.Trade.BatchDelay == 0 {
		cfg.Trade.BatchDelay = time.Second
	}
	if cfg.Trade.SingleDelay == 0 {
		cfg.Trade.SingleDelay = 200 * time.Millisecond
	}
	if cfg.Fee.Enabled == nil {
		enabled := cfg.Fee.Collector != ""
		cfg.Fee.Enabled = &enabled
	}
	if cfg.Fee.Lamports == 0 {
		cfg.Fee.Lamports = 30_000_000
	}
	if cfg.Volume.IntervalMin == 0 {
		cfg.Volume.IntervalMin = 20 * time.Second
	}
	if cfg.Volume.IntervalMax == 0 {
		cfg.Volume.IntervalMax = 60 * time.Second
	}
	if cfg.Volume.MinAmount == 0 {
		cfg.Volume.MinAmount = 0.01
	}
	if cfg.Volume.MaxAmount == 0 {
		cfg.Volume.MaxAmount = 0.1
	}
	if cfg.Volume.BuyBias == 0 {
		cfg.Volume.BuyBias = 0.6
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/sol-bundler-bot.db"
	}
	if cfg.History.Schema == "" {
		cfg.History.Schema = "public"
	}
	if cfg.History.QueueSize == 0 {
		cfg.History.QueueSize = 256
	}
	if cfg.Metrics.Enabled == nil {
		enabled := false
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Trade.TokenAddress == "" {
		return errors.New("trade.token_address is required")
	}
	switch cfg.Trade.BundleMode {
	case "single", "batch", "all-in-one":
	default:
		return fmt.Errorf("trade.bundle_mode %q is not one of single, batch, all-in-one", cfg.Trade.BundleMode)
	}
	if cfg.Volume.IntervalMax < cfg.Volume.IntervalMin {
		return errors.New("volume.interval_max must be >= volume.interval_min")
	}
	if cfg.Volume.MaxAmount < cfg.Volume.MinAmount {
		return errors.New("volume.max_amount must be >= volume.min_amount")
	}
	if cfg.Volume.BuyBias < 0 || cfg.Volume.BuyBias > 1 {
		return errors.New("volume.buy_bias must be within [0, 1]")
	}
	if cfg.Volume.SellPercent < 0 || cfg.Volume.SellPercent > 100 {
		return errors.New("volume.sell_percent must be within [0, 100]")
	}
	if cfg.Fee.EnabledValue() && cfg.Fee.Collector == "" {
		return errors.New("fee.collector is required when fee.enabled")
	}
	if cfg.History.Enabled && cfg.History.DSN == "" {
		return errors.New("history.dsn is required when history.enabled")
	}
	return nil
}
