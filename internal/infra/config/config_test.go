package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.Agent.MaxIterations)
	}
	if cfg.LLM.Provider.Type != "openrouter" {
		t.Errorf("Provider.Type = %q, want %q", cfg.LLM.Provider.Type, "openrouter")
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
	if cfg.Tools.CacheTTL != 5*time.Minute {
		t.Errorf("Tools.CacheTTL = %v, want 5m", cfg.Tools.CacheTTL)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	cfg, err := Load("/tmp/nonexistent-config-12345.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("expected defaults, got MaxIterations=%d", cfg.Agent.MaxIterations)
	}
	if cfg.Store.URI != "mongodb://localhost:27017" {
		t.Errorf("Store.URI = %q, want env override", cfg.Store.URI)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":9000"
  requests_per_min: 30
agent:
  max_iterations: 20
llm:
  provider:
    name: "openrouter"
    type: "openrouter"
    api_key: "test-key"
    model: "test-model"
store:
  driver: "sqlite"
  path: "./test.db"
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Agent.MaxIterations != 20 {
		t.Errorf("MaxIterations = %d, want 20", cfg.Agent.MaxIterations)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.LLM.Provider.APIKey != "test-key" {
		t.Errorf("Provider.APIKey = %q, want test-key", cfg.LLM.Provider.APIKey)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FINASSIST_ADDR", ":7777")
	t.Setenv("FINASSIST_LOGGER_LEVEL", "debug")
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Server.Addr != ":7777" {
		t.Errorf("Server.Addr = %q, want :7777", cfg.Server.Addr)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}
	if cfg.LLM.Provider.APIKey != "env-key" {
		t.Errorf("Provider.APIKey = %q, want env-key", cfg.LLM.Provider.APIKey)
	}
}

func TestEnvAPIKeyDoesNotOverrideExplicit(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	cfg := Defaults()
	cfg.LLM.Provider.APIKey = "explicit-key"
	ApplyEnvOverrides(cfg)

	if cfg.LLM.Provider.APIKey != "explicit-key" {
		t.Errorf("Provider.APIKey = %q, want explicit-key", cfg.LLM.Provider.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid sqlite",
			mutate: func(c *Config) { c.Store.Driver = "sqlite" },
		},
		{
			name:    "mongo without uri",
			mutate:  func(c *Config) { c.Store.Driver = "mongo"; c.Store.URI = "" },
			wantErr: true,
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: true,
		},
		{
			name: "unknown provider type",
			mutate: func(c *Config) {
				c.Store.Driver = "sqlite"
				c.LLM.Provider.Type = "cohere"
			},
			wantErr: true,
		},
		{
			name: "zero max iterations",
			mutate: func(c *Config) {
				c.Store.Driver = "sqlite"
				c.Agent.MaxIterations = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
