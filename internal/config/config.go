package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/devlongs/mev-inspect/pkg/types"
)

// Config holds all configuration for the MEV inspector
type Config struct {
	RPC       RPCConfig
	Inspector InspectorConfig
	Directory DirectoryConfig
	Storage   StorageConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
}

// RPCConfig holds Ethereum RPC configuration
type RPCConfig struct {
	URL             string
	RetryAttempts   int
	RetryDelay      time.Duration
	RequestTimeout  time.Duration
	RateLimit       float64 // requests per second, 0 = unlimited
	RateBurst       int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// InspectorConfig holds inspector-specific settings
type InspectorConfig struct {
	ChainID        types.ChainID // 0 = use the node's
	PollInterval   time.Duration
	BatchSize      int
	StartBlock     uint64
	WorkerCount    int
	Protocols      []types.Protocol
	OnlyProfitable bool // Only report arbitrages in the native asset
}

// FactoryConfig is an extra swap factory appended to the static directory
type FactoryConfig struct {
	ChainID  uint64 `mapstructure:"chain_id"`
	Protocol string `mapstructure:"protocol"`
	Label    string `mapstructure:"label"`
	Address  string `mapstructure:"address"`
}

// DirectoryConfig holds deployment overrides
type DirectoryConfig struct {
	Factories []FactoryConfig
}

// StorageConfig holds the optional pool store settings
type StorageConfig struct {
	PostgresDSN string
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Listen string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

var knownProtocols = map[types.Protocol]bool{
	types.ProtocolUniswapV2:  true,
	types.ProtocolUniswapV3:  true,
	types.ProtocolBalancerV1: true,
	types.ProtocolBalancerV2: true,
	types.ProtocolERC20:      true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.url", "https://eth-mainnet.g.alchemy.com/v2/YOUR_API_KEY")
	v.SetDefault("rpc.retry_attempts", 3)
	v.SetDefault("rpc.retry_delay", "1s")
	v.SetDefault("rpc.request_timeout", "30s")
	v.SetDefault("rpc.rate_limit", 0)
	v.SetDefault("rpc.rate_burst", 10)
	v.SetDefault("rpc.breaker_failures", 5)
	v.SetDefault("rpc.breaker_timeout", "30s")

	v.SetDefault("inspector.chain_id", 0)
	v.SetDefault("inspector.poll_interval", "12s")
	v.SetDefault("inspector.batch_size", 100)
	v.SetDefault("inspector.start_block", 0)
	v.SetDefault("inspector.worker_count", 4)
	v.SetDefault("inspector.protocols", []string{
		string(types.ProtocolUniswapV2),
		string(types.ProtocolUniswapV3),
		string(types.ProtocolBalancerV1),
		string(types.ProtocolBalancerV2),
		string(types.ProtocolERC20),
	})
	v.SetDefault("inspector.only_profitable", false)

	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("metrics.listen", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads configuration from defaults, an optional config file, the
// environment and flags, in increasing precedence. An empty cfgFile searches
// the default locations.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment variable support
	v.SetEnvPrefix("MEV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	// Config file support
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.mev-inspector")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var factories []FactoryConfig
	if err := v.UnmarshalKey("directory.factories", &factories); err != nil {
		return nil, fmt.Errorf("directory.factories: %w", err)
	}

	cfg := &Config{
		RPC: RPCConfig{
			URL:             v.GetString("rpc.url"),
			RetryAttempts:   v.GetInt("rpc.retry_attempts"),
			RetryDelay:      v.GetDuration("rpc.retry_delay"),
			RequestTimeout:  v.GetDuration("rpc.request_timeout"),
			RateLimit:       v.GetFloat64("rpc.rate_limit"),
			RateBurst:       v.GetInt("rpc.rate_burst"),
			BreakerFailures: v.GetUint32("rpc.breaker_failures"),
			BreakerTimeout:  v.GetDuration("rpc.breaker_timeout"),
		},
		Inspector: InspectorConfig{
			ChainID:        types.ChainID(v.GetUint64("inspector.chain_id")),
			PollInterval:   v.GetDuration("inspector.poll_interval"),
			BatchSize:      v.GetInt("inspector.batch_size"),
			StartBlock:     v.GetUint64("inspector.start_block"),
			WorkerCount:    v.GetInt("inspector.worker_count"),
			OnlyProfitable: v.GetBool("inspector.only_profitable"),
		},
		Directory: DirectoryConfig{
			Factories: factories,
		},
		Storage: StorageConfig{
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Metrics: MetricsConfig{
			Listen: v.GetString("metrics.listen"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}
	for _, p := range v.GetStringSlice("inspector.protocols") {
		cfg.Inspector.Protocols = append(cfg.Inspector.Protocols, types.Protocol(p))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}
	if c.Inspector.BatchSize < 1 {
		return fmt.Errorf("inspector.batch_size must be positive")
	}
	if c.Inspector.PollInterval <= 0 {
		return fmt.Errorf("inspector.poll_interval must be positive")
	}
	for _, p := range c.Inspector.Protocols {
		if !knownProtocols[p] {
			return fmt.Errorf("inspector.protocols: unknown protocol %q", p)
		}
	}
	for i, f := range c.Directory.Factories {
		if !knownProtocols[types.Protocol(f.Protocol)] {
			return fmt.Errorf("directory.factories[%d]: unknown protocol %q", i, f.Protocol)
		}
		if !common.IsHexAddress(f.Address) {
			return fmt.Errorf("directory.factories[%d]: invalid address %q", i, f.Address)
		}
		if f.ChainID == 0 {
			return fmt.Errorf("directory.factories[%d]: chain_id is required", i)
		}
	}
	return nil
}
