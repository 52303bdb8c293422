package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the capture service
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Server      ServerConfig      `mapstructure:"server"`
	Inference   InferenceConfig   `mapstructure:"inference"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Sources     SourcesConfig     `mapstructure:"sources"`
	Executors   ExecutorsConfig   `mapstructure:"executors"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	MigrateOnStart bool          `mapstructure:"migrate_on_start"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address required")
	}
	if len(s.JWTSecret) < 16 {
		return fmt.Errorf("server.jwt_secret must be at least 16 characters")
	}
	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be > 0")
	}
	return nil
}

// InferenceConfig selects and tunes the model provider.
type InferenceConfig struct {
	Provider          string        `mapstructure:"provider"` // gemini, openai
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Models            ModelRouting  `mapstructure:"models"`
}

// ModelRouting defines which model serves each pipeline purpose
type ModelRouting struct {
	Perception     string `mapstructure:"perception"`
	Classification string `mapstructure:"classification"`
	Routing        string `mapstructure:"routing"`
	Enrichment     string `mapstructure:"enrichment"`
}

// Normalize fills unset model slots from the perception model.
func (c InferenceConfig) Normalize() InferenceConfig {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	base := c.Models.Perception
	if c.Models.Classification == "" {
		c.Models.Classification = base
	}
	if c.Models.Routing == "" {
		c.Models.Routing = c.Models.Classification
	}
	if c.Models.Enrichment == "" {
		c.Models.Enrichment = c.Models.Classification
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

func (c InferenceConfig) Validate() error {
	switch c.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("inference.provider must be gemini or openai, got %q", c.Provider)
	}
	if strings.TrimSpace(c.Models.Perception) == "" {
		return fmt.Errorf("inference.models.perception required")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("inference.requests_per_second cannot be negative")
	}
	return nil
}

// PipelineConfig controls the capture pipeline.
type PipelineConfig struct {
	Mode                 string        `mapstructure:"mode"` // inline, queue
	MaxRetries           int           `mapstructure:"max_retries"`
	BackoffBase          time.Duration `mapstructure:"backoff_base"`
	CacheMaxAge          time.Duration `mapstructure:"cache_max_age"`
	InterHandlerDelay    time.Duration `mapstructure:"inter_handler_delay"`
	EnrichmentTimeout    time.Duration `mapstructure:"enrichment_timeout"`
	MaxConcurrent        int           `mapstructure:"max_concurrent"`
	SweepCron            string        `mapstructure:"sweep_cron"`
	StaleAfter           time.Duration `mapstructure:"stale_after"`
	DefaultEventDuration time.Duration `mapstructure:"default_event_duration"`
}

func (p PipelineConfig) Validate() error {
	if p.Mode != "inline" && p.Mode != "queue" {
		return fmt.Errorf("pipeline.mode must be inline or queue, got %q", p.Mode)
	}
	if p.MaxRetries < 1 {
		return fmt.Errorf("pipeline.max_retries must be >= 1")
	}
	if p.CacheMaxAge <= 0 {
		return fmt.Errorf("pipeline.cache_max_age must be > 0")
	}
	if p.EnrichmentTimeout <= 0 {
		return fmt.Errorf("pipeline.enrichment_timeout must be > 0")
	}
	if p.MaxConcurrent <= 0 {
		return fmt.Errorf("pipeline.max_concurrent must be > 0")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis     RedisConfig    `mapstructure:"redis"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
	Cache     string         `mapstructure:"cache"` // memory, redis, none
	IndexPath string         `mapstructure:"index_path"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN returns the connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, ssl)
}

// Configured reports whether a Postgres database was given. Without one the
// service keeps records in memory.
func (p PostgresConfig) Configured() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" || !p.Configured() {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// SourcesConfig configures the web lookups used by enrichment agents
type SourcesConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// FetchConfig controls resource verification fetches.
type FetchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Renderer string        `mapstructure:"renderer"` // http, chromedp
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
}

// ExecutorsConfig maps action types to executor backends.
type ExecutorsConfig struct {
	Actions map[string]ExecutorConfig `mapstructure:"actions"`
}

// ExecutorConfig is one action type's backend.
type ExecutorConfig struct {
	Kind     string        `mapstructure:"kind"` // local, webhook
	URL      string        `mapstructure:"url"`
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (e ExecutorsConfig) Validate() error {
	for name, a := range e.Actions {
		switch a.Kind {
		case "", "local":
		case "webhook":
			if strings.TrimSpace(a.URL) == "" {
				return fmt.Errorf("executors.actions.%s.url required for webhook executor", name)
			}
		default:
			return fmt.Errorf("executors.actions.%s.kind must be local or webhook, got %q", name, a.Kind)
		}
	}
	return nil
}

// CredentialsConfig holds the key sealing stored connector tokens
type CredentialsConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && !strings.HasPrefix(t.MetricsPath, "/") {
		return fmt.Errorf("telemetry.metrics_path must start with / when telemetry is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("server.max_upload_bytes", 20<<20)
	v.SetDefault("inference.provider", "gemini")
	v.SetDefault("inference.models.perception", "gemini-2.0-flash")
	v.SetDefault("inference.timeout", 60*time.Second)
	v.SetDefault("inference.requests_per_second", 2.0)
	v.SetDefault("inference.burst", 2)
	v.SetDefault("pipeline.mode", "inline")
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.backoff_base", 2*time.Second)
	v.SetDefault("pipeline.cache_max_age", 60*time.Minute)
	v.SetDefault("pipeline.inter_handler_delay", time.Second)
	v.SetDefault("pipeline.enrichment_timeout", 2*time.Minute)
	v.SetDefault("pipeline.max_concurrent", 8)
	v.SetDefault("pipeline.sweep_cron", "*/5 * * * *")
	v.SetDefault("pipeline.stale_after", 10*time.Minute)
	v.SetDefault("pipeline.default_event_duration", time.Hour)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.cache", "memory")
	v.SetDefault("sources.web_search.max_results", 5)
	v.SetDefault("sources.web_search.timeout", 10*time.Second)
	v.SetDefault("sources.fetch.renderer", "http")
	v.SetDefault("sources.fetch.timeout", 15*time.Second)
	v.SetDefault("sources.fetch.max_chars", 2000)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_path", "/metrics")
}

// LoadConfig loads config from file, falling back to the usual search paths
// when path is empty. Environment variables prefixed with LIFEOS_ override
// file values (LIFEOS_STORAGE_POSTGRES_URL -> storage.postgres.url).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)                                // bin/
		v.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("LIFEOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Inference = cfg.Inference.Normalize()

	validators := []func() error{
		cfg.Server.Validate,
		cfg.Inference.Validate,
		cfg.Pipeline.Validate,
		cfg.Storage.Postgres.Validate,
		cfg.Executors.Validate,
		cfg.Telemetry.Validate,
	}
	if cfg.Pipeline.Mode == "queue" || cfg.Storage.Cache == "redis" {
		validators = append(validators, cfg.Storage.Redis.Validate)
	}
	if cfg.Pipeline.Mode == "queue" {
		validators = append(validators, func() error {
			if !cfg.Storage.Postgres.Configured() {
				return fmt.Errorf("pipeline.mode=queue requires storage.postgres")
			}
			return nil
		})
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
