package main

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"access-gateway/middleware/ratelimit/domain"

	"github.com/kelseyhightower/envconfig"
)

type config struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	UpstreamURL string `envconfig:"UPSTREAM_URL"`
	PolicyFile  string `envconfig:"POLICY_FILE"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	SubjectHeader string `envconfig:"SUBJECT_HEADER" default:"X-User-ID"`
	TrustXFF      bool   `envconfig:"TRUST_XFF" default:"false"`

	// Padrão: 5 eventos por minuto.
	RateEnabled       bool                 `envconfig:"RATE_ENABLED" default:"true"`
	RateCapacity      int                  `envconfig:"RATE_CAPACITY" default:"5"`
	RateWindow        time.Duration        `envconfig:"RATE_WINDOW" default:"1m"`
	RateFailurePolicy domain.FailurePolicy `envconfig:"RATE_FAILURE_POLICY" default:"closed"`
	RateStoreTimeout  time.Duration        `envconfig:"RATE_STORE_TIMEOUT" default:"250ms"`
	RateStore         string               `envconfig:"RATE_STORE" default:"redis"`

	// Fração da regra admitida localmente em fail-open; 0 desliga.
	RateFallbackShare float64 `envconfig:"RATE_FALLBACK_SHARE" default:"0"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"ratelimit:window"`

	// relógio do Redis para a janela; evita desvio entre réplicas.
	RedisServerClock bool `envconfig:"REDIS_SERVER_CLOCK" default:"true"`

	PrincipalPrefix string `envconfig:"PRINCIPAL_PREFIX" default:"principal"`

	ConcurrencyMax     int           `envconfig:"CONCURRENCY_MAX" default:"100"`
	ConcurrencyTimeout time.Duration `envconfig:"CONCURRENCY_TIMEOUT" default:"0"`

	StatsBackend string        `envconfig:"STATS_BACKEND" default:"prometheus"`
	StatsPrefix  string        `envconfig:"STATS_PREFIX" default:"ratelimit:stats"`
	StatsTTL     time.Duration `envconfig:"STATS_TTL" default:"24h"`
	StatsPerKey  bool          `envconfig:"STATS_TRACK_KEYS" default:"false"`

	// requisições por minuto por IP em /metrics; 0 desliga.
	MetricsRPM int `envconfig:"METRICS_RPM" default:"60"`

	IngestEnabled bool   `envconfig:"INGEST_ENABLED" default:"true"`
	IngestFile    string `envconfig:"INGEST_FILE" default:"application.log"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		return config{}, err
	}
	cfg.RateStore = strings.ToLower(strings.TrimSpace(cfg.RateStore))
	cfg.StatsBackend = strings.ToLower(strings.TrimSpace(cfg.StatsBackend))
	return cfg, cfg.validate()
}

func (c config) validate() error {
	if c.UpstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if c.RateEnabled {
		if err := (domain.Rule{Capacity: c.RateCapacity, Window: c.RateWindow}).Validate(); err != nil {
			return err
		}
		if c.RateStoreTimeout <= 0 {
			return errors.New("RATE_STORE_TIMEOUT must be > 0")
		}
		if c.RateFallbackShare < 0 || c.RateFallbackShare > 1 {
			return errors.New("RATE_FALLBACK_SHARE must be within [0, 1]")
		}
	}
	switch c.RateStore {
	case "memory", "redis":
	default:
		return errors.New("RATE_STORE must be memory|redis")
	}
	switch c.StatsBackend {
	case "none", "memory", "redis", "prometheus":
	default:
		return errors.New("STATS_BACKEND must be none|memory|redis|prometheus")
	}
	if c.MetricsRPM < 0 {
		return errors.New("METRICS_RPM must be >= 0")
	}
	if c.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if strings.TrimSpace(c.SubjectHeader) == "" {
		return errors.New("SUBJECT_HEADER must not be empty")
	}
	return nil
}

func newLogger(cfg config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
