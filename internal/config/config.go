// Package config loads server configuration from built-in defaults, a YAML
// file, and environment variables (prefixed A2E_), in that order of
// increasing precedence.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of server-level settings. Individual components
// (vault, engine, controls) receive only the slice of this struct they
// need, constructed once in cmd/a2e-server/main.go.
type Config struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	LogPretty bool  `mapstructure:"log_pretty"`

	DataDir string `mapstructure:"data_dir"`

	VaultKeyMaterial string `mapstructure:"vault_key_material"`

	JWTSecret       string        `mapstructure:"jwt_secret"`
	JWTTokenTTL     time.Duration `mapstructure:"jwt_token_ttl"`

	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	RateLimitPerHour   int `mapstructure:"rate_limit_per_hour"`
	RateLimitPerDay    int `mapstructure:"rate_limit_per_day"`

	RetryMaxRetries  int           `mapstructure:"retry_max_retries"`
	RetryInitialWait time.Duration `mapstructure:"retry_initial_wait"`
	RetryMaxWait     time.Duration `mapstructure:"retry_max_wait"`
	RetryBase        float64       `mapstructure:"retry_base"`

	CacheMaxEntries int           `mapstructure:"cache_max_entries"`
	CacheDefaultTTL time.Duration `mapstructure:"cache_default_ttl"`
	RedisAddr       string        `mapstructure:"redis_addr"`

	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`

	SemanticSearchURL string `mapstructure:"semantic_search_url"`

	AuditDir string `mapstructure:"audit_dir"`

	StorageS3Bucket string `mapstructure:"storage_s3_bucket"`
	StorageS3Region string `mapstructure:"storage_s3_region"`
	StorageRedisKeyPrefix string `mapstructure:"storage_redis_key_prefix"`
}

// Load reads config.yaml from the configured search paths, merges in
// A2E_-prefixed environment variables, and applies defaults for anything
// left unset.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/a2e/")
	viper.AddConfigPath("$HOME/.a2e")
	viper.AddConfigPath(".")

	viper.SetDefault("port", 8088)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_pretty", false)
	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("vault_key_material", "")
	viper.SetDefault("jwt_secret", "")
	viper.SetDefault("jwt_token_ttl", 15*time.Minute)
	viper.SetDefault("rate_limit_per_minute", 60)
	viper.SetDefault("rate_limit_per_hour", 1000)
	viper.SetDefault("rate_limit_per_day", 10000)
	viper.SetDefault("retry_max_retries", 3)
	viper.SetDefault("retry_initial_wait", time.Second)
	viper.SetDefault("retry_max_wait", 30*time.Second)
	viper.SetDefault("retry_base", 2.0)
	viper.SetDefault("cache_max_entries", 1000)
	viper.SetDefault("cache_default_ttl", 5*time.Minute)
	viper.SetDefault("redis_addr", "")
	viper.SetDefault("execution_timeout", 5*time.Minute)
	viper.SetDefault("semantic_search_url", "")
	viper.SetDefault("audit_dir", "./data/audit")
	viper.SetDefault("storage_s3_bucket", "")
	viper.SetDefault("storage_s3_region", "us-east-1")
	viper.SetDefault("storage_redis_key_prefix", "a2e:store")

	viper.SetEnvPrefix("A2E")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.VaultKeyMaterial == "" {
		return nil, fmt.Errorf("vault_key_material (A2E_VAULT_KEY_MATERIAL) must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret (A2E_JWT_SECRET) must be set")
	}

	return &cfg, nil
}
