package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Evm        EvmConfig        `mapstructure:"evm"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type AuthConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr           string `mapstructure:"addr"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	DayLockTTLSecs int    `mapstructure:"day_lock_ttl_seconds"`
	DayLockKey     string `mapstructure:"day_lock_key_prefix"`
}

type LedgerConfig struct {
	// EpsilonUSDT is the reconciliation tolerance; diffs at or above it fail.
	EpsilonUSDT float64 `mapstructure:"epsilon_usdt"`
	// CreditPrefixes are account_key namespaces allowed to go negative.
	CreditPrefixes []string `mapstructure:"credit_prefixes"`
	// FullRescan forces the chain verifier to ignore the checkpoint watermark.
	FullRescan bool `mapstructure:"full_rescan"`
}

type SettlementConfig struct {
	ActiveAdapter string  `mapstructure:"active_adapter"`
	MaxBatchItems int     `mapstructure:"max_batch_items"`
	MaxBatchUSDT  float64 `mapstructure:"max_batch_usdt"`
}

type EvmConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ChainName     string  `mapstructure:"chain_name"`
	RPCURL        string  `mapstructure:"rpc_url"`
	PrivateKey    string  `mapstructure:"private_key"` // 生产环境应使用 KMS
	TokenAddress  string  `mapstructure:"token_address"`
	TokenDecimals int32   `mapstructure:"token_decimals"`
	RPCTimeoutMs  int     `mapstructure:"rpc_timeout_ms"`
	Confirmations uint64  `mapstructure:"confirmations"`
	SubmitQPS     float64 `mapstructure:"submit_qps"`
	SubmitBurst   int     `mapstructure:"submit_burst"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. SETTLEGUARD_DATABASE_DSN
	viper.SetEnvPrefix("settleguard")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("auth.admin_key", "")
	viper.SetDefault("redis.day_lock_ttl_seconds", 600)
	viper.SetDefault("redis.day_lock_key_prefix", "integrity:lock:")
	viper.SetDefault("ledger.epsilon_usdt", 0.0001)
	viper.SetDefault("ledger.credit_prefixes", []string{"user_", "dist_"})
	viper.SetDefault("ledger.full_rescan", false)
	viper.SetDefault("settlement.active_adapter", "SIMULATED")
	viper.SetDefault("settlement.max_batch_items", 20)
	viper.SetDefault("settlement.max_batch_usdt", 50.0)
	viper.SetDefault("evm.chain_name", "POLYGON")
	viper.SetDefault("evm.token_decimals", 6)
	viper.SetDefault("evm.rpc_timeout_ms", 5000)
	viper.SetDefault("evm.confirmations", 1)
	viper.SetDefault("evm.submit_qps", 2)
	viper.SetDefault("evm.submit_burst", 4)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
