// Package config loads server configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// Issuer is the iss claim stamped into every access token. Verifiers
	// reject tokens whose issuer differs, so it must match the public URL.
	Issuer   string `mapstructure:"issuer"`
	LogLevel string `mapstructure:"log_level"`

	Mongo MongoConfig `mapstructure:"mongo"`
	Redis RedisConfig `mapstructure:"redis"`
	Token TokenConfig `mapstructure:"token"`
	Keys  KeysConfig  `mapstructure:"keys"`

	BcryptCost int `mapstructure:"bcrypt_cost"`
}

type MongoConfig struct {
	// URI empty selects the in-memory stores, for development only.
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	// Addr empty selects the in-process revocation list.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TokenConfig struct {
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	AuthCodeTTL   time.Duration `mapstructure:"auth_code_ttl"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

type KeysConfig struct {
	RotationInterval    time.Duration `mapstructure:"rotation_interval"`
	MinRotationInterval time.Duration `mapstructure:"min_rotation_interval"`
	RetiringWindow      time.Duration `mapstructure:"retiring_window"`
}

// Load reads configuration from an optional smartauth.yaml (working
// directory or /etc/smartauth) with SMARTAUTH_-prefixed environment
// variables taking precedence.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("issuer", "http://localhost:8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "smartauth")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("token.access_ttl", 5*time.Minute)
	v.SetDefault("token.refresh_ttl", 30*24*time.Hour)
	v.SetDefault("token.auth_code_ttl", 90*time.Second)
	v.SetDefault("token.purge_interval", 10*time.Minute)
	v.SetDefault("keys.rotation_interval", 24*time.Hour)
	v.SetDefault("keys.min_rotation_interval", time.Hour)
	v.SetDefault("keys.retiring_window", 24*time.Hour)
	v.SetDefault("bcrypt_cost", 0)

	v.SetConfigName("smartauth")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/smartauth")

	v.SetEnvPrefix("SMARTAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer must not be empty")
	}
	// Retiring keys must outlive the longest-lived signed token, or rotation
	// would strand access tokens that are still inside their lifetime.
	// Refresh tokens are opaque and unaffected by key retirement.
	if c.Keys.RetiringWindow < c.Token.AccessTTL {
		return fmt.Errorf("keys.retiring_window (%s) must be at least token.access_ttl (%s)",
			c.Keys.RetiringWindow, c.Token.AccessTTL)
	}
	return nil
}
