package domain

import "time"

// Config holds the complete SmartWallet configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" koanf:"server"`

	// Profile selects the default backing services
	Profile Profile `json:"profile" koanf:"profile"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" koanf:"repository"`
	Cache      CacheConfig      `json:"cache" koanf:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" koanf:"event_bus"`

	// Recommendation pipeline
	Recommend RecommendConfig `json:"recommend" koanf:"recommend"`
	Worker    WorkerConfig    `json:"worker" koanf:"worker"`
	Retention RetentionConfig `json:"retention" koanf:"retention"`

	// Observability
	Logging LoggingConfig `json:"logging" koanf:"logging"`
	Tracing TracingConfig `json:"tracing" koanf:"tracing"`
	Metrics MetricsConfig `json:"metrics" koanf:"metrics"`
}

// Profile represents a deployment profile.
type Profile string

const (
	// ProfileLocal runs on SQLite, an in-memory cache and channels.
	ProfileLocal Profile = "local"

	// ProfileDistributed runs on PostgreSQL, Redis and NATS.
	ProfileDistributed Profile = "distributed"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" koanf:"host"`
	Port         int    `json:"port" koanf:"port"`
	ReadTimeout  int    `json:"readTimeout" koanf:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" koanf:"write_timeout"` // seconds

	// StaticDir serves the browser UI when set.
	StaticDir string `json:"staticDir" koanf:"static_dir"`

	// RateLimit is the sustained requests per second allowed; 0 disables it.
	RateLimit float64 `json:"rateLimit" koanf:"rate_limit"`
	RateBurst int     `json:"rateBurst" koanf:"rate_burst"`
}

// RecommendConfig tunes the recommendation service plumbing.
type RecommendConfig struct {
	// CatalogTTL bounds how long cards, rules and apps are reused between loads.
	CatalogTTL time.Duration `json:"catalogTtl" koanf:"catalog_ttl"`

	// MemoTTL bounds how long identical transaction inputs reuse a result.
	MemoTTL time.Duration `json:"memoTtl" koanf:"memo_ttl"`

	// AdvisoryWorkers caps concurrent advisory rule evaluations.
	AdvisoryWorkers int `json:"advisoryWorkers" koanf:"advisory_workers"`

	// History persists every recommendation.
	History bool `json:"history" koanf:"history"`
}

// WorkerConfig controls the async recommendation worker.
type WorkerConfig struct {
	Enabled     bool `json:"enabled" koanf:"enabled"`
	Concurrency int  `json:"concurrency" koanf:"concurrency"`
	QueueSize   int  `json:"queueSize" koanf:"queue_size"`
}

// RetentionConfig controls pruning of recommendation history.
type RetentionConfig struct {
	Schedule string        `json:"schedule" koanf:"schedule"` // cron spec with seconds
	MaxAge   time.Duration `json:"maxAge" koanf:"max_age"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level"`   // debug, info, warn, error
	Format string `json:"format" koanf:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" koanf:"enabled"`
	ServiceName string `json:"serviceName" koanf:"service_name"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" koanf:"enabled"`
	Namespace string `json:"namespace" koanf:"namespace"`
}

// DefaultConfig returns the local profile configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			ReadTimeout:  30,
			WriteTimeout: 30,
			RateLimit:    20,
			RateBurst:    40,
		},
		Profile: ProfileLocal,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./smartwallet.db",
			DataDir:    "./data",
			Seed:       true,
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     2 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Recommend: RecommendConfig{
			CatalogTTL:      2 * time.Second,
			MemoTTL:         2 * time.Second,
			AdvisoryWorkers: 10,
			History:         true,
		},
		Worker: WorkerConfig{
			Enabled:     true,
			Concurrency: 4,
			QueueSize:   100,
		},
		Retention: RetentionConfig{
			Schedule: "0 0 3 * * *",
			MaxAge:   30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "smartwallet",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "smartwallet",
		},
	}
}

// DistributedConfig returns a configuration backed by PostgreSQL, Redis and NATS.
func DistributedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileDistributed
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "smartwallet",
		Seed:         true,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Second,
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
