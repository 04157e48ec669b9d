package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Server struct {
		Addr     string `mapstructure:"addr"`
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"server"`

	Postgres struct {
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		DBName       string `mapstructure:"db_name"`
		SSLMode      string `mapstructure:"ssl_mode"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
	} `mapstructure:"postgres"`

	Listener struct {
		Channel          string `mapstructure:"channel"`
		ReconnectSeconds int    `mapstructure:"reconnect_seconds"`
	} `mapstructure:"listener"`

	Engine struct {
		HighValueUGCCutoff float64 `mapstructure:"high_value_ugc_cutoff"`
		MaxAttempts        int     `mapstructure:"max_attempts"`
		// CatalogFile, when set, replaces Postgres as the catalog source.
		CatalogFile        string  `mapstructure:"catalog_file"`
		// SessionTTLMinutes is how long an idle journey session is kept.
		SessionTTLMinutes  int     `mapstructure:"session_ttl_minutes"`
	} `mapstructure:"engine"`

	Counters struct {
		Backend       string `mapstructure:"backend"` // memory | postgres | redis
		LockTimeoutMS int    `mapstructure:"lock_timeout_ms"`
	} `mapstructure:"counters"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`
}

// keys with defaults; registering them also lets APP_* env vars override
// nested keys on Unmarshal.
var defaults = map[string]any{
	"server.addr":                  ":8080",
	"server.log_level":             "info",
	"postgres.host":                "localhost",
	"postgres.port":                5432,
	"postgres.user":                "",
	"postgres.password":            "",
	"postgres.db_name":             "campaigns",
	"postgres.ssl_mode":            "disable",
	"postgres.max_open_conns":      10,
	"postgres.max_idle_conns":      10,
	"listener.channel":             "catalog_changed",
	"listener.reconnect_seconds":   5,
	"engine.high_value_ugc_cutoff": 100.0,
	"engine.max_attempts":          3,
	"engine.catalog_file":          "",
	"engine.session_ttl_minutes":   30,
	"counters.backend":             "memory",
	"counters.lock_timeout_ms":     2000,
	"redis.addr":                   "localhost:6379",
	"redis.password":               "",
	"redis.db":                     0,
	"redis.pool_size":              10,
}

func Load() Config {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}
	validate(&cfg)
	return cfg
}

func validate(c *Config) {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 10
	}
	if c.Postgres.MaxIdleConns == 0 {
		c.Postgres.MaxIdleConns = 10
	}
	if c.Listener.ReconnectSeconds <= 0 {
		c.Listener.ReconnectSeconds = 5
	}
	if c.Engine.MaxAttempts <= 0 {
		c.Engine.MaxAttempts = 1
	}
	if c.Engine.HighValueUGCCutoff < 0 {
		c.Engine.HighValueUGCCutoff = 0
	}
	if c.Engine.SessionTTLMinutes <= 0 {
		c.Engine.SessionTTLMinutes = 30
	}
	if c.Counters.LockTimeoutMS <= 0 {
		c.Counters.LockTimeoutMS = 2000
	}
	c.Counters.Backend = strings.ToLower(strings.TrimSpace(c.Counters.Backend))
	if c.Counters.Backend == "" {
		c.Counters.Backend = "memory"
	}
	if c.Redis.PoolSize <= 0 {
		c.Redis.PoolSize = 10
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

func (c Config) Backoff() time.Duration { return time.Duration(c.Listener.ReconnectSeconds) * time.Second }

func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.Counters.LockTimeoutMS) * time.Millisecond
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.Engine.SessionTTLMinutes) * time.Minute
}

// NeedsPostgres reports whether the catalog or the counters live in Postgres.
func (c Config) NeedsPostgres() bool {
	return c.Engine.CatalogFile == "" || c.Counters.Backend == "postgres"
}
