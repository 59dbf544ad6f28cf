package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Internal InternalConfig `mapstructure:"internal"`
	Provider ProviderConfig `mapstructure:"provider"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
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
	TxTimeout       time.Duration `mapstructure:"tx_timeout"`
	TxMaxRetries    int           `mapstructure:"tx_max_retries"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
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

// StorageConfig selects the wallet store backend: "postgres" or "memory".
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// JWTConfig validates actor tokens minted by the upstream auth service.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// InternalConfig holds the credentials the order subsystem signs its requests with.
type InternalConfig struct {
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	MaxSkew   time.Duration `mapstructure:"max_skew"`
	NonceTTL  time.Duration `mapstructure:"nonce_ttl"`
}

type ProviderConfig struct {
	Name string     `mapstructure:"name"`
	MoMo MoMoConfig `mapstructure:"momo"`
}

type MoMoConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	PartnerCode string        `mapstructure:"partner_code"`
	AccessKey   string        `mapstructure:"access_key"`
	SecretKey   string        `mapstructure:"secret_key"`
	RedirectURL string        `mapstructure:"redirect_url"`
	IPNURL      string        `mapstructure:"ipn_url"`
	RequestType string        `mapstructure:"request_type"`
	Lang        string        `mapstructure:"lang"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RatePerSec  float64       `mapstructure:"rate_per_sec"`
	Burst       int           `mapstructure:"burst"`
}

// LedgerConfig bounds deposit and withdrawal amounts, in VND.
type LedgerConfig struct {
	MinDeposit       int64         `mapstructure:"min_deposit"`
	MaxDeposit       int64         `mapstructure:"max_deposit"`
	MinWithdraw      int64         `mapstructure:"min_withdraw"`
	MaxWithdraw      int64         `mapstructure:"max_withdraw"`
	CallbackCacheTTL time.Duration `mapstructure:"callback_cache_ttl"`
}

type SweeperConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Interval          time.Duration `mapstructure:"interval"`
	PendingDepositTTL time.Duration `mapstructure:"pending_deposit_ttl"`
	WithdrawStaleTTL  time.Duration `mapstructure:"withdraw_stale_ttl"`
	BatchSize         int           `mapstructure:"batch_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: DWE_ (Delivery Wallet Engine).
// Nested keys use underscore: DWE_DATABASE_HOST, DWE_PROVIDER_MOMO_SECRET_KEY, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "delivery_wallet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.tx_timeout", "5s")
	v.SetDefault("database.tx_max_retries", 3)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "delivery-auth")
	v.SetDefault("internal.access_key", "")
	v.SetDefault("internal.secret_key", "")
	v.SetDefault("internal.max_skew", "5m")
	v.SetDefault("internal.nonce_ttl", "10m")
	v.SetDefault("provider.name", "momo")
	v.SetDefault("provider.momo.endpoint", "https://test-payment.momo.vn/v2/gateway/api/create")
	v.SetDefault("provider.momo.partner_code", "")
	v.SetDefault("provider.momo.access_key", "")
	v.SetDefault("provider.momo.secret_key", "")
	v.SetDefault("provider.momo.redirect_url", "")
	v.SetDefault("provider.momo.ipn_url", "")
	v.SetDefault("provider.momo.request_type", "captureWallet")
	v.SetDefault("provider.momo.lang", "vi")
	v.SetDefault("provider.momo.timeout", "10s")
	v.SetDefault("provider.momo.rate_per_sec", 20.0)
	v.SetDefault("provider.momo.burst", 5)
	v.SetDefault("ledger.min_deposit", 10000)
	v.SetDefault("ledger.max_deposit", 50000000)
	v.SetDefault("ledger.min_withdraw", 50000)
	v.SetDefault("ledger.max_withdraw", 50000000)
	v.SetDefault("ledger.callback_cache_ttl", "24h")
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", "1m")
	v.SetDefault("sweeper.pending_deposit_ttl", "30m")
	v.SetDefault("sweeper.withdraw_stale_ttl", "24h")
	v.SetDefault("sweeper.batch_size", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// DWE_PROVIDER_MOMO_SECRET_KEY -> provider.momo.secret_key
	v.SetEnvPrefix("DWE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	l := c.Ledger
	if l.MinDeposit <= 0 || l.MaxDeposit < l.MinDeposit {
		return fmt.Errorf("invalid deposit bounds [%d, %d]", l.MinDeposit, l.MaxDeposit)
	}
	if l.MinWithdraw <= 0 || l.MaxWithdraw < l.MinWithdraw {
		return fmt.Errorf("invalid withdraw bounds [%d, %d]", l.MinWithdraw, l.MaxWithdraw)
	}
	return nil
}
