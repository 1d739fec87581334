package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server Server  `yaml:"server"`
	LLM    LLM     `yaml:"llm"`
	Agent  Agent   `yaml:"agent"`
	Store  Store   `yaml:"store"`
	Tools  Tools   `yaml:"tools"`
	Logger Logger  `yaml:"logger"`
	Tracer Tracer  `yaml:"tracer"`
}

// Server holds HTTP gateway settings.
type Server struct {
	Addr            string        `yaml:"addr"`
	AuthToken       string        `yaml:"auth_token,omitempty"` // empty = no auth
	RequestsPerMin  float64       `yaml:"requests_per_min"`
	BurstSize       int           `yaml:"burst_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLM holds LLM provider settings.
type LLM struct {
	Provider       Provider       `yaml:"provider"`
	CircuitBreaker CircuitBreaker `yaml:"circuit_breaker"`
}

// Provider holds settings for the LLM provider.
type Provider struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openrouter" or "openai"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        Pool          `yaml:"pool"`
}

// Pool holds HTTP connection pool settings for the LLM provider.
type Pool struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// CircuitBreaker holds circuit breaker settings for the LLM provider.
type CircuitBreaker struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// Agent holds agent behavior settings.
type Agent struct {
	SystemPrompt  string        `yaml:"system_prompt"`
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Store holds expense store settings.
type Store struct {
	Driver     string        `yaml:"driver"` // "mongo" or "sqlite"
	URI        string        `yaml:"uri"`    // mongo connection string
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Path       string        `yaml:"path"` // sqlite database file
	Timeout    time.Duration `yaml:"timeout"`
}

// Tools holds tool registry settings.
type Tools struct {
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	DefaultLimit       int           `yaml:"default_limit"`
	MaxLimit           int           `yaml:"max_limit"`
	SchemaValidation   bool          `yaml:"schema_validation"`
}

// Logger holds logging settings.
type Logger struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	Output string `yaml:"output"` // "stdout", "stderr", or a file path
}

// Tracer holds tracing settings.
type Tracer struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// Defaults returns a Config with sensible defaults for local development.
func Defaults() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8000",
			RequestsPerMin:  120,
			BurstSize:       20,
			ShutdownTimeout: 5 * time.Second,
		},
		LLM: LLM{
			Provider: Provider{
				Name:    "openrouter",
				Type:    "openrouter",
				BaseURL: "https://openrouter.ai/api/v1",
				Model:   "google/gemini-2.0-flash-exp:free",
			},
			CircuitBreaker: CircuitBreaker{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Agent: Agent{
			SystemPrompt:  DefaultSystemPrompt,
			MaxIterations: 10,
			Timeout:       2 * time.Minute,
		},
		Store: Store{
			Driver:     "mongo",
			Database:   "financial_app",
			Collection: "expenses",
			Path:       "./data/expenses.db",
			Timeout:    5 * time.Second,
		},
		Tools: Tools{
			CacheTTL:         5 * time.Minute,
			DefaultLimit:     5,
			MaxLimit:         100,
			SchemaValidation: true,
		},
		Logger: Logger{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: Tracer{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads the config file at path, applies env overrides, and validates.
// A missing file is not an error; defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overrides config values from FINASSIST_* environment
// variables. OPENROUTER_API_KEY is also honored for parity with the
// hosted deployments.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FINASSIST_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("FINASSIST_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("FINASSIST_LLM_API_KEY"); v != "" {
		cfg.LLM.Provider.APIKey = v
	}
	if cfg.LLM.Provider.APIKey == "" {
		if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
			cfg.LLM.Provider.APIKey = v
		}
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Provider.Model = v
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Store.URI = v
	}
	if v := os.Getenv("FINASSIST_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("FINASSIST_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("FINASSIST_TRACER_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tracer.Enabled = enabled
		}
	}
	if v := os.Getenv("FINASSIST_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// Validate checks config invariants that would otherwise surface as
// confusing runtime failures.
func Validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "mongo":
		if cfg.Store.URI == "" {
			return fmt.Errorf("store: mongo driver requires uri (or MONGODB_URI)")
		}
	case "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store: sqlite driver requires path")
		}
	default:
		return fmt.Errorf("store: unknown driver %q", cfg.Store.Driver)
	}

	switch cfg.LLM.Provider.Type {
	case "openrouter", "openai":
	default:
		return fmt.Errorf("llm: unknown provider type %q", cfg.LLM.Provider.Type)
	}

	if cfg.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent: max_iterations must be > 0")
	}
	if cfg.Tools.DefaultLimit <= 0 {
		return fmt.Errorf("tools: default_limit must be > 0")
	}
	return nil
}
