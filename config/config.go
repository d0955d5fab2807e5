package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	AES        AESConfig        `mapstructure:"aes"`
	Log        LogConfig        `mapstructure:"log"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Redrive    RedriveConfig    `mapstructure:"redrive"`
	Alert      AlertConfig      `mapstructure:"alert"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"` // bounds waits on payment/asset row locks
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// GatewayConfig configures the push-payment gateway. When ConfigSource is
// "database" the active row of gateway_configs is used instead and only
// BaseURL, Timeout and CallbackTokenHash are read from here.
type GatewayConfig struct {
	ConfigSource      string        `mapstructure:"config_source"` // static, database
	BaseURL           string        `mapstructure:"base_url"`
	ConsumerKey       string        `mapstructure:"consumer_key"`
	ConsumerSecret    string        `mapstructure:"consumer_secret"`
	ShortCode         string        `mapstructure:"short_code"`
	TillNumber        string        `mapstructure:"till_number"`
	Passkey           string        `mapstructure:"passkey"`
	TransactionType   string        `mapstructure:"transaction_type"` // CustomerPayBillOnline, CustomerBuyGoodsOnline
	CallbackURL       string        `mapstructure:"callback_url"`
	CallbackTokenHash string        `mapstructure:"callback_token_hash"` // argon2id hash of the callback path token
	Timeout           time.Duration `mapstructure:"timeout"`
}

// SettlementConfig holds business thresholds for initiation and settlement.
type SettlementConfig struct {
	MinDeposit       int64 `mapstructure:"min_deposit"`
	MinAssetPurchase int64 `mapstructure:"min_asset_purchase"`
	GrantBonus       int64 `mapstructure:"grant_bonus"`
	MaxAttempts      int   `mapstructure:"max_attempts"`
}

// RedriveConfig controls the background re-drive of completed but unreleased payments.
type RedriveConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

// AlertConfig configures the ops alert webhook.
type AlertConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Secret     string `mapstructure:"secret"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: SES_ (Settlement Engine Service).
// Nested keys use underscore: SES_DATABASE_HOST, SES_GATEWAY_PASSKEY, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "settlement_engine")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "settlement-engine")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("gateway.config_source", "static")
	v.SetDefault("gateway.base_url", "https://sandbox.safaricom.co.ke")
	v.SetDefault("gateway.transaction_type", "CustomerPayBillOnline")
	v.SetDefault("gateway.timeout", "30s")
	v.SetDefault("settlement.min_deposit", 500)
	v.SetDefault("settlement.min_asset_purchase", 1500)
	v.SetDefault("settlement.grant_bonus", 0)
	v.SetDefault("settlement.max_attempts", 2)
	v.SetDefault("redrive.enabled", true)
	v.SetDefault("redrive.interval", "1m")
	v.SetDefault("redrive.batch_size", 50)
	v.SetDefault("alert.webhook_url", "")
	v.SetDefault("alert.secret", "")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: SES_DATABASE_HOST -> database.host
	v.SetEnvPrefix("SES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid storage.driver %q: must be postgres or memory", c.Storage.Driver)
	}
	switch c.Gateway.ConfigSource {
	case "static", "database":
	default:
		return fmt.Errorf("invalid gateway.config_source %q: must be static or database", c.Gateway.ConfigSource)
	}
	switch c.Gateway.TransactionType {
	case "CustomerPayBillOnline", "CustomerBuyGoodsOnline":
	default:
		return fmt.Errorf("invalid gateway.transaction_type %q", c.Gateway.TransactionType)
	}
	if c.Settlement.MinDeposit <= 0 || c.Settlement.MinAssetPurchase <= 0 {
		return fmt.Errorf("settlement minimums must be positive")
	}
	if c.Settlement.MaxAttempts < 1 {
		return fmt.Errorf("settlement.max_attempts must be at least 1")
	}
	return nil
}
