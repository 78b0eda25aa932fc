// Package config loads the service configuration: tier defaults, an
// optional YAML file, then CLAIMWATCH_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLAIMWATCH_"

// Load builds the configuration. path may be empty. ${VAR} references in the
// file are expanded from the environment before parsing.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if strings.EqualFold(getenv("TIER"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported repository driver %q", cfg.Repository.Driver))
	}
	if cfg.Search.MinSimilarity < 0 || cfg.Search.MinSimilarity > 100 {
		errs = append(errs, fmt.Errorf("search.minSimilarity %.1f out of range", cfg.Search.MinSimilarity))
	}
	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateSession checks the settings the HTTP server needs to accept
// session tokens.
func ValidateSession(cfg *domain.Config) error {
	var errs []error
	if cfg.Session.Secret == "" {
		errs = append(errs, errors.New("session.secret is required"))
	}
	if cfg.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookieName is required"))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a logging level name to slog.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown logging level %q", level)
}

func applyEnv(cfg *domain.Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v := getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("HOST", &cfg.Server.Host)
	num("PORT", &cfg.Server.Port)

	str("DB_DRIVER", &cfg.Repository.Driver)
	str("SQLITE_PATH", &cfg.Repository.SQLitePath)
	str("POSTGRES_HOST", &cfg.Repository.PostgresHost)
	num("POSTGRES_PORT", &cfg.Repository.PostgresPort)
	str("POSTGRES_USER", &cfg.Repository.PostgresUser)
	str("POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	str("POSTGRES_DB", &cfg.Repository.PostgresDB)
	str("POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	str("CACHE_TYPE", &cfg.Cache.Type)
	str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)

	str("BUS_TYPE", &cfg.EventBus.Type)
	str("NATS_URL", &cfg.EventBus.NATSUrl)
	str("NATS_TOKEN", &cfg.EventBus.NATSToken)

	str("SESSION_SECRET", &cfg.Session.Secret)
	str("SESSION_COOKIE", &cfg.Session.CookieName)
	if v := getenv("CORS_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
	if v := getenv("DISPOSABLE_DOMAINS"); v != "" {
		cfg.Fraud.DisposableDomains = splitList(v)
	}

	dur("SEARCH_CACHE_TTL", &cfg.Search.CacheTTL)
	flag("WORKER_ENABLED", &cfg.Worker.Enabled)
	num("WORKER_COUNT", &cfg.Worker.WorkerCount)
	flag("TRACING_ENABLED", &cfg.Tracing.Enabled)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	if getenv("DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	return errors.Join(errs...)
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
