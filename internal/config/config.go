package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cron       CronConfig       `mapstructure:"cron"`
	Market     MarketConfig     `mapstructure:"market"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type CronConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Snapshot   string `mapstructure:"snapshot"`
	Settlement string `mapstructure:"settlement"`
}

type MarketConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Currency string        `mapstructure:"currency"`
	PageSize int           `mapstructure:"page_size"`
}

type LedgerConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ConfirmInterval time.Duration `mapstructure:"confirm_interval"`
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
}

type PipelineConfig struct {
	LockName string        `mapstructure:"lock_name"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type SettlementConfig struct {
	// ResolutionInterval is how old a prediction snapshot must be before it
	// locks in for scoring. Younger rows may still be superseded.
	ResolutionInterval time.Duration `mapstructure:"resolution_interval"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.snapshot", "@every 10m")
	v.SetDefault("cron.settlement", "@every 15m")
	v.SetDefault("market.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("market.timeout", "15s")
	v.SetDefault("market.currency", "usd")
	v.SetDefault("market.page_size", 100)
	v.SetDefault("ledger.base_url", "http://localhost:8899")
	v.SetDefault("ledger.timeout", "15s")
	v.SetDefault("ledger.confirm_interval", "2s")
	v.SetDefault("ledger.confirm_timeout", "60s")
	v.SetDefault("pipeline.lock_name", "settlement_pipeline")
	v.SetDefault("pipeline.lock_ttl", "10m")
	v.SetDefault("settlement.resolution_interval", "60m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
