package domain

import "time"

// Config holds the complete ClaimWatch configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier selects the infrastructure defaults
	Tier Tier `yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventBus"`

	// Request handling
	Session SessionConfig `yaml:"session"`
	CORS    CORSConfig    `yaml:"cors"`

	// Fraud pipeline
	Fraud  FraudConfig  `yaml:"fraud"`
	Search SearchConfig `yaml:"search"`
	Worker WorkerConfig `yaml:"worker"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
}

// SessionConfig holds the session token settings.
type SessionConfig struct {
	Secret     string `yaml:"secret"`
	CookieName string `yaml:"cookieName"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// FraudConfig tunes the rule engine.
type FraudConfig struct {
	DisposableDomains []string      `yaml:"disposableDomains"`
	MaxWorkers        int           `yaml:"maxWorkers"`
	Rules             []*RuleConfig `yaml:"rules"` // loaded after the built-in rules
}

// SearchConfig tunes similar-claims search.
type SearchConfig struct {
	MinSimilarity float64       `yaml:"minSimilarity"`
	Limit         int           `yaml:"limit"`
	CacheTTL      time.Duration `yaml:"cacheTtl"`
}

// WorkerConfig controls the background re-evaluation consumer.
type WorkerConfig struct {
	Enabled     bool `yaml:"enabled"`
	WorkerCount int  `yaml:"workerCount"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultDisposableDomains are the temporary-mail providers flagged by default.
var DefaultDisposableDomains = []string{"tempmail.com", "10minutemail.com", "guerrillamail.com"}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./claimwatch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Session: SessionConfig{
			CookieName: "session",
		},
		Fraud: FraudConfig{
			DisposableDomains: append([]string(nil), DefaultDisposableDomains...),
			MaxWorkers:        8,
		},
		Search: SearchConfig{
			MinSimilarity: 60,
			Limit:         20,
			CacheTTL:      time.Minute,
		},
		Worker: WorkerConfig{
			Enabled:     true,
			WorkerCount: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "claimwatch",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "claimwatch",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
