package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SWAPTRACKER_DATABASE_HOST.
const EnvPrefix = "SWAPTRACKER"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Ethereum     EthereumConfig     `mapstructure:"ethereum"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Pricing      PricingConfig      `mapstructure:"pricing"`
	Oracle       OracleConfig       `mapstructure:"oracle"`
	Metadata     MetadataConfig     `mapstructure:"metadata"`
	Redis        RedisConfig        `mapstructure:"redis"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type EthereumConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
	WSURL  string `mapstructure:"ws_url"`
	// ChainlinkFeed is the ETH/USD aggregator; empty selects the mainnet feed.
	ChainlinkFeed string `mapstructure:"chainlink_feed"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type PipelineConfig struct {
	QuietPeriod         time.Duration `mapstructure:"quiet_period"`
	BatchSize           int           `mapstructure:"batch_size"`
	MaxPending          int           `mapstructure:"max_pending"`
	AnchorRefreshBlocks uint64        `mapstructure:"anchor_refresh_blocks"`
	DedupeTTL           time.Duration `mapstructure:"dedupe_ttl"`
}

type PricingConfig struct {
	NativeToken  string   `mapstructure:"native_token"`
	StableTokens []string `mapstructure:"stable_tokens"`
	MaxValue     string   `mapstructure:"max_value"`
}

type OracleConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MetadataConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// RedisConfig is optional; an empty Addr keeps caches and dedupe in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// NATSConfig is optional; an empty URL disables the publisher.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type WebhookConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SigningKey string `mapstructure:"signing_key"`
}

type SubscriptionConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("ethereum.rpc_url", "")
	v.SetDefault("ethereum.ws_url", "")
	v.SetDefault("ethereum.chainlink_feed", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "swaps")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("pipeline.quiet_period", "300ms")
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.max_pending", 0)
	v.SetDefault("pipeline.anchor_refresh_blocks", 1)
	v.SetDefault("pipeline.dedupe_ttl", "10m")

	v.SetDefault("pricing.native_token", "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	v.SetDefault("pricing.stable_tokens", []string{
		"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		"0xdac17f958d2ee523a2206206994597c13d831ec7",
	})
	v.SetDefault("pricing.max_value", "")

	v.SetDefault("oracle.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.timeout", "10s")

	v.SetDefault("metadata.cache_size", 0)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "swaptracker:")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "swap_events")

	v.SetDefault("webhook.enabled", true)
	v.SetDefault("webhook.signing_key", "")

	v.SetDefault("subscription.enabled", false)
	v.SetDefault("subscription.idle_timeout", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "")
}

// Load reads the optional config file at path, then applies SWAPTRACKER_*
// environment overrides on top of it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings start-up cannot recover from.
func (c *Config) Validate() error {
	if c.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required")
	}
	if !c.Webhook.Enabled && !c.Subscription.Enabled {
		return fmt.Errorf("at least one of webhook.enabled or subscription.enabled must be set")
	}
	if c.Subscription.Enabled && c.Ethereum.WSURL == "" {
		return fmt.Errorf("ethereum.ws_url is required when subscription is enabled")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.DedupeTTL <= 0 {
		return fmt.Errorf("pipeline.dedupe_ttl must be positive, got %s", c.Pipeline.DedupeTTL)
	}
	if _, err := c.Pricing.MaxValueDecimal(); err != nil {
		return err
	}
	return nil
}

// MaxValueDecimal parses pricing.max_value; empty yields zero, meaning the persister default.
func (p PricingConfig) MaxValueDecimal() (decimal.Decimal, error) {
	if p.MaxValue == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(p.MaxValue)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid pricing.max_value %q: %w", p.MaxValue, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("pricing.max_value must be positive, got %s", p.MaxValue)
	}
	return d, nil
}

// StableSet returns the configured stable tokens, lowercased.
func (p PricingConfig) StableSet() []string {
	out := make([]string, 0, len(p.StableTokens))
	for _, s := range p.StableTokens {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
