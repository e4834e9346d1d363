package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables overriding file values.
// Nesting levels are separated by a double underscore, e.g.
// DOMAIN_SEARCH_STORE__DRIVER=etcd.
const EnvPrefix = "DOMAIN_SEARCH_"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Store        StoreConfig        `koanf:"store"`
	Events       EventsConfig       `koanf:"events"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Swarm        SwarmConfig        `koanf:"swarm"`
	Checker      CheckerConfig      `koanf:"checker"`
	Pricing      PricingConfig      `koanf:"pricing"`
	Providers    ProvidersConfig    `koanf:"providers"`
	Notifier     NotifierConfig     `koanf:"notifier"`
	Archive      ArchiveConfig      `koanf:"archive"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	LogLevel     string             `koanf:"log_level"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	BasePath     string        `koanf:"base_path"`   // Optional base path for reverse proxy (e.g., "/domains")
	CreateRate   float64       `koanf:"create_rate"` // job creations per second per client, 0 disables
	CreateBurst  int           `koanf:"create_burst"`
}

// StoreConfig selects and configures the job store
type StoreConfig struct {
	Driver   string         `koanf:"driver"` // memory, etcd or postgres
	Etcd     EtcdConfig     `koanf:"etcd"`
	Postgres PostgresConfig `koanf:"postgres"`
}

// EtcdConfig represents etcd connection configuration
type EtcdConfig struct {
	Endpoints   []string      `koanf:"endpoints"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
	Prefix      string        `koanf:"prefix"`
	TLS         *TLSConfig    `koanf:"tls"`
}

// PostgresConfig represents PostgreSQL connection configuration
type PostgresConfig struct {
	DSN            string `koanf:"dsn"`
	MaxOpenConns   int    `koanf:"max_open_conns"`
	MigrateOnStart bool   `koanf:"migrate_on_start"`
}

// EventsConfig selects the event publisher
type EventsConfig struct {
	Driver       string        `koanf:"driver"` // memory or redis
	BufferSize   int           `koanf:"buffer_size"`
	Redis        RedisConfig   `koanf:"redis"`
	SSEKeepAlive time.Duration `koanf:"sse_keep_alive"`
}

// RedisConfig represents redis connection configuration
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// OrchestratorConfig tunes the per-job batch loop
type OrchestratorConfig struct {
	BatchSize       int            `koanf:"batch_size"`
	GenerateTimeout time.Duration  `koanf:"generate_timeout"`
	EvaluateTimeout time.Duration  `koanf:"evaluate_timeout"`
	CheckTimeout    time.Duration  `koanf:"check_timeout"`
	NotifyTimeout   time.Duration  `koanf:"notify_timeout"`
	MaxSaveRetries  int            `koanf:"max_save_retries"`
	RequireScore    bool           `koanf:"require_score"`
	DefaultBackend  string         `koanf:"default_backend"`
	Followup        FollowupConfig `koanf:"followup"`

	// InstanceID names this instance as job owner; empty picks a random one
	InstanceID      string        `koanf:"instance_id"`
	LeaseTTL        time.Duration `koanf:"lease_ttl"`
	RecoverInterval time.Duration `koanf:"recover_interval"` // 0 recovers only at boot
}

// FollowupConfig configures when a job pauses for clarification
type FollowupConfig struct {
	Enabled       bool    `koanf:"enabled"`
	AfterBatches  int     `koanf:"after_batches"`
	MaxRounds     int     `koanf:"max_rounds"`
	MinYield      float64 `koanf:"min_yield"`
	MaxTakenRatio float64 `koanf:"max_taken_ratio"`
	MinMeanScore  float64 `koanf:"min_mean_score"`
}

// SwarmConfig configures the evaluator swarm
type SwarmConfig struct {
	Members          []string      `koanf:"members"` // backend names, empty means the job backend only
	MaxConcurrent    int           `koanf:"max_concurrent"`
	CandidateTimeout time.Duration `koanf:"candidate_timeout"`
}

// CheckerConfig configures RDAP availability lookups
type CheckerConfig struct {
	BaseURL       string        `koanf:"base_url"`
	Timeout       time.Duration `koanf:"timeout"`
	MaxAttempts   int           `koanf:"max_attempts"`
	BaseBackoff   time.Duration `koanf:"base_backoff"`
	MaxInFlight   int           `koanf:"max_in_flight"`
	RatePerSecond float64       `koanf:"rate_per_second"`
	Burst         int           `koanf:"burst"`
}

// PricingConfig configures the pricing table and its refresher
type PricingConfig struct {
	URL                   string           `koanf:"url"`
	RefreshInterval       time.Duration    `koanf:"refresh_interval"`
	Timeout               time.Duration    `koanf:"timeout"`
	TTL                   time.Duration    `koanf:"ttl"`
	Currency              string           `koanf:"currency"`
	BundledMaxCents       int64            `koanf:"bundled_max_cents"`
	RecommendedMaxCents   int64            `koanf:"recommended_max_cents"`
	PremiumFlagAboveCents int64            `koanf:"premium_flag_above_cents"`
	Static                map[string]int64 `koanf:"static"` // tld -> cents, loaded before the first refresh
}

// ProvidersConfig holds credentials for AI backends
type ProvidersConfig struct {
	Timeout    time.Duration    `koanf:"timeout"`
	Claude     ProviderConfig   `koanf:"claude"`
	Deepseek   ProviderConfig   `koanf:"deepseek"`
	Kimi       ProviderConfig   `koanf:"kimi"`
	Cloudflare CloudflareConfig `koanf:"cloudflare"`
}

// ProviderConfig represents a single chat-completion backend
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// CloudflareConfig represents the Workers AI backend
type CloudflareConfig struct {
	AccountID string `koanf:"account_id"`
	APIToken  string `koanf:"api_token"`
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
}

// NotifierConfig selects the notification backend
type NotifierConfig struct {
	Driver     string     `koanf:"driver"` // log or amqp
	TopResults int        `koanf:"top_results"`
	AMQP       AMQPConfig `koanf:"amqp"`
}

// AMQPConfig represents RabbitMQ publishing configuration
type AMQPConfig struct {
	URL        string `koanf:"url"`
	Exchange   string `koanf:"exchange"`
	RoutingKey string `koanf:"routing_key"`
}

// ArchiveConfig configures the optional S3 archive
type ArchiveConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
	Prefix    string `koanf:"prefix"`
}

// TelemetryConfig configures metrics and tracing
type TelemetryConfig struct {
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	Insecure     bool   `koanf:"insecure"`
}

// TLSConfig represents client TLS configuration
type TLSConfig struct {
	CA   string `koanf:"ca"`
	Cert string `koanf:"cert"`
	Key  string `koanf:"key"`
}

// Default returns the configuration used when a value is not set
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // SSE streams are long-lived
			CreateRate:   1,
			CreateBurst:  5,
		},
		Store: StoreConfig{
			Driver: "memory",
			Etcd: EtcdConfig{
				DialTimeout: 5 * time.Second,
				Prefix:      "/domain-search/jobs/",
			},
			Postgres: PostgresConfig{MaxOpenConns: 10, MigrateOnStart: true},
		},
		Events: EventsConfig{
			Driver:       "memory",
			BufferSize:   64,
			Redis:        RedisConfig{Addr: "localhost:6379", Prefix: "domain-search:events"},
			SSEKeepAlive: 15 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			BatchSize:       10,
			GenerateTimeout: 60 * time.Second,
			EvaluateTimeout: 45 * time.Second,
			CheckTimeout:    60 * time.Second,
			NotifyTimeout:   10 * time.Second,
			MaxSaveRetries:  3,
			RequireScore:    true,
			DefaultBackend:  "heuristic",
			LeaseTTL:        15 * time.Second,
			RecoverInterval: 30 * time.Second,
			Followup: FollowupConfig{
				Enabled:       true,
				AfterBatches:  2,
				MaxRounds:     1,
				MinYield:      0.2,
				MaxTakenRatio: 0.8,
				MinMeanScore:  5,
			},
		},
		Swarm: SwarmConfig{
			MaxConcurrent:    8,
			CandidateTimeout: 20 * time.Second,
		},
		Checker: CheckerConfig{
			BaseURL:       "https://rdap.org",
			Timeout:       10 * time.Second,
			MaxAttempts:   3,
			BaseBackoff:   500 * time.Millisecond,
			MaxInFlight:   8,
			RatePerSecond: 5,
			Burst:         5,
		},
		Pricing: PricingConfig{
			URL:                   "https://api.cloudflare.com/client/v4/domains/pricing",
			RefreshInterval:       6 * time.Hour,
			Timeout:               15 * time.Second,
			Currency:              "USD",
			BundledMaxCents:       0,
			RecommendedMaxCents:   1500,
			PremiumFlagAboveCents: 5000,
		},
		Providers: ProvidersConfig{
			Timeout:  60 * time.Second,
			Claude:   ProviderConfig{BaseURL: "https://api.anthropic.com", Model: "claude-3-5-haiku-latest"},
			Deepseek: ProviderConfig{BaseURL: "https://api.deepseek.com", Model: "deepseek-chat"},
			Kimi:     ProviderConfig{BaseURL: "https://api.moonshot.cn/v1", Model: "moonshot-v1-8k"},
			Cloudflare: CloudflareConfig{
				BaseURL: "https://api.cloudflare.com/client/v4",
				Model:   "@cf/meta/llama-3.1-8b-instruct",
			},
		},
		Notifier: NotifierConfig{
			Driver:     "log",
			TopResults: 10,
			AMQP:       AMQPConfig{Exchange: "notifications", RoutingKey: "domain-search.completed"},
		},
		Archive: ArchiveConfig{Prefix: "jobs/"},
		Telemetry: TelemetryConfig{
			ServiceName: "domain-search",
		},
		LogLevel: "info",
	}
}

// Load loads configuration from the specified file and the environment.
// An empty path skips the file and uses defaults plus environment.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps DOMAIN_SEARCH_STORE__ETCD__PREFIX to store.etcd.prefix
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.CreateRate < 0 {
		return fmt.Errorf("server.create_rate must not be negative")
	}

	switch c.Store.Driver {
	case "memory":
	case "etcd":
		if len(c.Store.Etcd.Endpoints) == 0 {
			return fmt.Errorf("store.etcd.endpoints is required for the etcd store")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	switch c.Events.Driver {
	case "memory":
	case "redis":
		if c.Events.Redis.Addr == "" {
			return fmt.Errorf("events.redis.addr is required for the redis publisher")
		}
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}

	o := c.Orchestrator
	if o.BatchSize <= 0 {
		return fmt.Errorf("orchestrator.batch_size must be positive")
	}
	if o.MaxSaveRetries < 0 {
		return fmt.Errorf("orchestrator.max_save_retries must not be negative")
	}
	if o.GenerateTimeout <= 0 || o.EvaluateTimeout <= 0 || o.CheckTimeout <= 0 {
		return fmt.Errorf("orchestrator step timeouts must be positive")
	}
	if o.LeaseTTL < time.Second {
		return fmt.Errorf("orchestrator.lease_ttl must be at least 1s")
	}
	if o.RecoverInterval < 0 {
		return fmt.Errorf("orchestrator.recover_interval must not be negative")
	}
	if o.Followup.Enabled {
		if o.Followup.AfterBatches <= 0 {
			return fmt.Errorf("orchestrator.followup.after_batches must be positive when follow-up is enabled")
		}
		if o.Followup.MaxRounds <= 0 {
			return fmt.Errorf("orchestrator.followup.max_rounds must be positive when follow-up is enabled")
		}
	}

	if c.Checker.BaseURL == "" {
		return fmt.Errorf("checker.base_url is required")
	}
	if c.Checker.MaxAttempts <= 0 {
		return fmt.Errorf("checker.max_attempts must be positive")
	}
	if c.Checker.MaxInFlight <= 0 {
		return fmt.Errorf("checker.max_in_flight must be positive")
	}
	if c.Checker.RatePerSecond <= 0 {
		return fmt.Errorf("checker.rate_per_second must be positive")
	}

	p := c.Pricing
	if p.RecommendedMaxCents < p.BundledMaxCents {
		return fmt.Errorf("pricing.recommended_max_cents must be >= bundled_max_cents")
	}
	if p.PremiumFlagAboveCents < p.RecommendedMaxCents {
		return fmt.Errorf("pricing.premium_flag_above_cents must be >= recommended_max_cents")
	}

	switch c.Notifier.Driver {
	case "log":
	case "amqp":
		if c.Notifier.AMQP.URL == "" {
			return fmt.Errorf("notifier.amqp.url is required for the amqp notifier")
		}
	default:
		return fmt.Errorf("unknown notifier.driver %q", c.Notifier.Driver)
	}

	if c.Archive.Enabled && (c.Archive.Endpoint == "" || c.Archive.Bucket == "") {
		return fmt.Errorf("archive.endpoint and archive.bucket are required when archive is enabled")
	}

	return nil
}
