package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	LLM        LLMConfig        `yaml:"llm"`
	Browser    BrowserConfig    `yaml:"browser"`
	Session    SessionConfig    `yaml:"session"`
	Platforms  PlatformsConfig  `yaml:"platforms"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
// Push delivery is disabled when either key is empty.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	MaxMessageBytes int64    `yaml:"max_message_bytes"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" or "gemini"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// BrowserConfig controls the automation engine.
type BrowserConfig struct {
	Bin                   string        `yaml:"bin"`
	Headless              bool          `yaml:"headless"`
	ElementTimeoutSeconds int           `yaml:"element_timeout_seconds"`
	ElementTimeout        time.Duration `yaml:"-"`
	SnapshotDir           string        `yaml:"snapshot_dir"`
}

// SessionConfig controls booking session lifetimes.
type SessionConfig struct {
	IdleTimeoutMinutes     int           `yaml:"idle_timeout_minutes"`
	IdleTimeout            time.Duration `yaml:"-"`
	SweepIntervalMinutes   int           `yaml:"sweep_interval_minutes"`
	SweepInterval          time.Duration `yaml:"-"`
	DisconnectGraceSeconds int           `yaml:"disconnect_grace_seconds"`
	DisconnectGrace        time.Duration `yaml:"-"`
	MaxFunctionCalls       int           `yaml:"max_function_calls"`
	InboundQueueSize       int           `yaml:"inbound_queue_size"`
}

// PlatformsConfig holds per-platform endpoints.
type PlatformsConfig struct {
	Calendly     CalendlyConfig     `yaml:"calendly"`
	HousecallPro HousecallProConfig `yaml:"housecallpro"`
	OpenTable    OpenTableConfig    `yaml:"opentable"`
}

// CalendlyConfig configures the Calendly adapter. The API fields are optional;
// without them every availability check goes through the browser.
type CalendlyConfig struct {
	URL          string `yaml:"url"`
	APIBaseURL   string `yaml:"api_base_url"`
	APIToken     string `yaml:"api_token"`
	EventTypeURI string `yaml:"event_type_uri"`
	Timezone     string `yaml:"timezone"`
	HTTPProxy    string `yaml:"http_proxy"`
}

// HousecallProConfig configures the Housecall Pro adapter.
type HousecallProConfig struct {
	URL string `yaml:"url"`
}

// OpenTableConfig configures the OpenTable adapter.
type OpenTableConfig struct {
	URL               string `yaml:"url"`
	DefaultPartySize  int    `yaml:"default_party_size"`
	MaxOTPAttempts    int    `yaml:"max_otp_attempts"`
	StepTimeoutSecond int    `yaml:"step_timeout_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path. Secrets set in the
// environment take precedence over the file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	switch cfg.LLM.Provider {
	case "gemini":
		override(&cfg.LLM.APIKey, "GEMINI_API_KEY")
	default:
		override(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	}
	override(&cfg.Platforms.Calendly.APIToken, "CALENDLY_API_TOKEN")
	override(&cfg.Database.DSN, "DATABASE_DSN")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}
	if cfg.Server.MaxMessageBytes <= 0 {
		cfg.Server.MaxMessageBytes = 64 << 10
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "gemini":
			cfg.LLM.Model = "gemini-1.5-flash"
		default:
			cfg.LLM.Model = "gpt-4o-mini"
		}
	}

	if cfg.Browser.ElementTimeoutSeconds <= 0 {
		cfg.Browser.ElementTimeoutSeconds = 15
	}
	cfg.Browser.ElementTimeout = time.Duration(cfg.Browser.ElementTimeoutSeconds) * time.Second
	if cfg.Browser.SnapshotDir == "" {
		cfg.Browser.SnapshotDir = "./snapshots"
	}

	if cfg.Session.IdleTimeoutMinutes <= 0 {
		cfg.Session.IdleTimeoutMinutes = 10
	}
	cfg.Session.IdleTimeout = time.Duration(cfg.Session.IdleTimeoutMinutes) * time.Minute
	if cfg.Session.SweepIntervalMinutes <= 0 {
		cfg.Session.SweepIntervalMinutes = 10
	}
	cfg.Session.SweepInterval = time.Duration(cfg.Session.SweepIntervalMinutes) * time.Minute
	if cfg.Session.DisconnectGraceSeconds <= 0 {
		cfg.Session.DisconnectGraceSeconds = 120
	}
	cfg.Session.DisconnectGrace = time.Duration(cfg.Session.DisconnectGraceSeconds) * time.Second
	if cfg.Session.MaxFunctionCalls <= 0 {
		cfg.Session.MaxFunctionCalls = 8
	}
	if cfg.Session.InboundQueueSize <= 0 {
		cfg.Session.InboundQueueSize = 8
	}

	if cfg.Platforms.Calendly.URL == "" {
		cfg.Platforms.Calendly.URL = "https://calendly.com/aadhrik-myaifrontdesk/30min"
	}
	if cfg.Platforms.Calendly.APIBaseURL == "" {
		cfg.Platforms.Calendly.APIBaseURL = "https://api.calendly.com"
	}
	if cfg.Platforms.Calendly.Timezone == "" {
		cfg.Platforms.Calendly.Timezone = "America/New_York"
	}
	if cfg.Platforms.HousecallPro.URL == "" {
		cfg.Platforms.HousecallPro.URL = "https://book.housecallpro.com/book/My-AI-Frontdesk/ff43037256a44791816647e0e5e9f2cd?v2=true"
	}
	if cfg.Platforms.OpenTable.URL == "" {
		cfg.Platforms.OpenTable.URL = "https://www.opentable.com/r/cafe-dalsace-new-york"
	}
	if cfg.Platforms.OpenTable.DefaultPartySize <= 0 {
		cfg.Platforms.OpenTable.DefaultPartySize = 4
	}
	if cfg.Platforms.OpenTable.MaxOTPAttempts <= 0 {
		cfg.Platforms.OpenTable.MaxOTPAttempts = 3
	}
	if cfg.Platforms.OpenTable.StepTimeoutSecond <= 0 {
		cfg.Platforms.OpenTable.StepTimeoutSecond = 30
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "booking.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
}
