package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/beacon/aggregate"
	"github.com/xraph/beacon/ratelimit"
	"github.com/xraph/beacon/session"
)

// Backends selectable for the event store and the rate limiter. The
// rate limiter only runs on memory or redis.
const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
	backendMongo    = "mongo"
)

// defaultSQLiteDSN is used when the sqlite store has no database_url.
const defaultSQLiteDSN = "file:beacon.db"

// Config is the binary's configuration. Every key can be set from the
// environment with the BEACON_ prefix (e.g. BEACON_ADMIN_TOKEN) or from
// the optional file named by BEACON_CONFIG.
type Config struct {
	Addr     string
	LogLevel string
	LogJSON  bool

	Store       string
	Limiter     string
	RedisURL    string
	DatabaseURL string

	RateLimit  int
	RateWindow time.Duration
	CookieName string

	AdminToken      string
	AllowedOrigins  []string
	AllowedTypes    []string
	ProducerSecrets []string

	MetricSetsFile string
	Defaults       aggregate.Defaults

	ShutdownTimeout time.Duration
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("beacon")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", true)
	v.SetDefault("store", backendMemory)
	v.SetDefault("limiter", backendMemory)
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("database_url", "")
	v.SetDefault("rate_limit", ratelimit.DefaultLimit)
	v.SetDefault("rate_window", ratelimit.DefaultWindow)
	v.SetDefault("cookie_name", session.DefaultCookieName)
	v.SetDefault("admin_token", "")
	v.SetDefault("allowed_origins", "")
	v.SetDefault("allowed_types", "")
	v.SetDefault("producer_secrets", "")
	v.SetDefault("metric_sets_file", "")
	v.SetDefault("shutdown_timeout", 10*time.Second)

	d := aggregate.DefaultDefaults()
	v.SetDefault("defaults.count_days", d.CountDays)
	v.SetDefault("defaults.query_limit", d.QueryLimit)
	v.SetDefault("defaults.max_query_limit", d.MaxQueryLimit)
	v.SetDefault("defaults.series_type", d.SeriesType)

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		Addr:            v.GetString("addr"),
		LogLevel:        v.GetString("log_level"),
		LogJSON:         v.GetBool("log_json"),
		Store:           strings.ToLower(v.GetString("store")),
		Limiter:         strings.ToLower(v.GetString("limiter")),
		RedisURL:        v.GetString("redis_url"),
		DatabaseURL:     v.GetString("database_url"),
		RateLimit:       v.GetInt("rate_limit"),
		RateWindow:      v.GetDuration("rate_window"),
		CookieName:      v.GetString("cookie_name"),
		AdminToken:      v.GetString("admin_token"),
		AllowedOrigins:  list(v, "allowed_origins"),
		AllowedTypes:    list(v, "allowed_types"),
		ProducerSecrets: list(v, "producer_secrets"),
		MetricSetsFile:  v.GetString("metric_sets_file"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		Defaults:        d,
	}
	if err := v.UnmarshalKey("defaults", &cfg.Defaults); err != nil {
		return Config{}, fmt.Errorf("decode defaults: %w", err)
	}

	switch cfg.Store {
	case backendMemory, backendRedis:
	case backendSQLite:
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = defaultSQLiteDSN
		}
	case backendPostgres, backendMongo:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("store %s needs database_url", cfg.Store)
		}
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
	if cfg.Limiter != backendMemory && cfg.Limiter != backendRedis {
		return Config{}, fmt.Errorf("unknown limiter backend %q (want %s or %s)", cfg.Limiter, backendMemory, backendRedis)
	}
	return cfg, nil
}

// list reads a key that may be a YAML sequence or a comma-separated string.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, s := range v.GetStringSlice(key) {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
