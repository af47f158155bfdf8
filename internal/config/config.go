package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"funding-radar/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Exchanges ExchangesConfig `mapstructure:"exchanges"`
	History   HistoryConfig   `mapstructure:"history"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig governs the HTTP listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig governs the snapshot cache window.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// UpstreamConfig sets shared retry/timeout behaviour for exchange calls.
type UpstreamConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// ExchangeConfig holds one venue's connectivity settings.
type ExchangeConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// OKXConfig extends ExchangeConfig with inner fan-out pacing.
type OKXConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	MaxConcurrency    int     `mapstructure:"max_concurrency"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// HyperLiquidConfig extends ExchangeConfig with history pagination tuning.
type HyperLiquidConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	BatchDays         int     `mapstructure:"batch_days"`
	PageLimit         int     `mapstructure:"page_limit"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ExchangesConfig groups per-venue settings.
type ExchangesConfig struct {
	Binance     ExchangeConfig    `mapstructure:"binance"`
	Bybit       ExchangeConfig    `mapstructure:"bybit"`
	Bitget      ExchangeConfig    `mapstructure:"bitget"`
	OKX         OKXConfig         `mapstructure:"okx"`
	GateIO      ExchangeConfig    `mapstructure:"gateio"`
	HyperLiquid HyperLiquidConfig `mapstructure:"hyperliquid"`
}

// HistoryConfig tunes the history reconciler.
type HistoryConfig struct {
	IncludeCurrent bool `mapstructure:"include_current"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FUNDINGRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fundingradar")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("cache.ttl", "60s")

	v.SetDefault("upstream.max_attempts", 3)
	v.SetDefault("upstream.base_delay", "1s")
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("upstream.user_agent", "fundingradar/1.0")

	v.SetDefault("exchanges.binance.base_url", "https://fapi.binance.com")
	v.SetDefault("exchanges.bybit.base_url", "https://api.bybit.com")
	v.SetDefault("exchanges.bitget.base_url", "https://api.bitget.com")
	v.SetDefault("exchanges.okx.base_url", "https://www.okx.com")
	v.SetDefault("exchanges.okx.max_concurrency", 10)
	v.SetDefault("exchanges.okx.requests_per_second", 20.0)
	v.SetDefault("exchanges.gateio.base_url", "https://api.gateio.ws")
	v.SetDefault("exchanges.hyperliquid.base_url", "https://api.hyperliquid.xyz")
	v.SetDefault("exchanges.hyperliquid.batch_days", 7)
	v.SetDefault("exchanges.hyperliquid.page_limit", 500)
	v.SetDefault("exchanges.hyperliquid.requests_per_second", 5.0)

	v.SetDefault("history.include_current", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be greater than zero")
	}
	if c.Upstream.MaxAttempts <= 0 {
		return fmt.Errorf("upstream.max_attempts must be greater than zero")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be greater than zero")
	}
	if c.Exchanges.OKX.MaxConcurrency <= 0 {
		return fmt.Errorf("exchanges.okx.max_concurrency must be greater than zero")
	}
	if c.Exchanges.HyperLiquid.BatchDays <= 0 {
		return fmt.Errorf("exchanges.hyperliquid.batch_days must be greater than zero")
	}
	if c.Exchanges.HyperLiquid.PageLimit <= 0 {
		return fmt.Errorf("exchanges.hyperliquid.page_limit must be greater than zero")
	}
	return nil
}
