package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/faucetdb/askdb/internal/llm"
	"github.com/faucetdb/askdb/internal/model"
	"github.com/faucetdb/askdb/internal/query"
)

// YAMLConfig represents the top-level askdb configuration file.
type YAMLConfig struct {
	Server   ServerConfig  `yaml:"server"`
	Auth     AuthConfig    `yaml:"auth"`
	LLM      LLMConfig     `yaml:"llm"`
	Ask      AskConfig     `yaml:"ask"`
	Services []ServiceYAML `yaml:"services"`
	MCP      MCPConfig     `yaml:"mcp"`
	Logging  LoggingConfig `yaml:"logging"`
	History  HistoryConfig `yaml:"history"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	MaxBodySize     string          `yaml:"max_body_size"`
	ShutdownTimeout string          `yaml:"shutdown_timeout"`
	CORS            CORSConfig      `yaml:"cors"`
	TLS             TLSConfig       `yaml:"tls"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// TLSConfig controls TLS termination at the server level.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RateLimitConfig caps ask requests per client IP. Every ask costs two
// model calls, so the default is deliberately low.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// AuthConfig controls authentication settings.
type AuthConfig struct {
	Required     bool     `yaml:"required"`
	JWTSecret    string   `yaml:"jwt_secret"`
	JWTExpiry    string   `yaml:"jwt_expiry"`
	APIKeyHeader string   `yaml:"api_key_header"`
	APIKeys      []string `yaml:"api_keys"`
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// AskConfig holds the defaults applied to every question.
type AskConfig struct {
	MaxRows               int    `yaml:"max_rows"`
	Timeout               string `yaml:"timeout"`
	FormatResults         bool   `yaml:"format_results"`
	CancelOnTimeout       bool   `yaml:"cancel_on_timeout"`
	FallbackOnFormatError bool   `yaml:"fallback_on_format_error"`
	DefaultService        string `yaml:"default_service"`
	SchemaCacheTTL        string `yaml:"schema_cache_ttl"`
}

// ServiceYAML defines a database service in the YAML configuration file.
type ServiceYAML struct {
	Name               string          `yaml:"name"`
	Label              string          `yaml:"label,omitempty"`
	Driver             string          `yaml:"driver"`
	DSN                string          `yaml:"dsn"`
	PrivateKeyPath     string          `yaml:"private_key_path,omitempty"`
	Schema             string          `yaml:"schema,omitempty"`
	SensitiveColumns   []string        `yaml:"sensitive_columns,omitempty"`
	CustomInstructions string          `yaml:"custom_instructions,omitempty"`
	Pool               *PoolYAMLConfig `yaml:"pool,omitempty"`
}

// PoolYAMLConfig controls the connection pool for a service in YAML config.
type PoolYAMLConfig struct {
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HistoryConfig controls the ask history kept in the config store.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxEntries prunes the oldest records beyond this count; 0 keeps all.
	MaxEntries int `yaml:"max_entries"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before
// parsing. Unset fields keep the values from DefaultYAMLConfig.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks service names and durations.
func (c *YAMLConfig) Validate() error {
	seen := make(map[string]bool, len(c.Services))
	for i, svc := range c.Services {
		if err := query.ValidateIdentifier(svc.Name); err != nil {
			return fmt.Errorf("services[%d]: invalid name: %w", i, err)
		}
		if seen[svc.Name] {
			return fmt.Errorf("services[%d]: duplicate service name %q", i, svc.Name)
		}
		seen[svc.Name] = true
		if strings.TrimSpace(svc.Driver) == "" {
			return fmt.Errorf("service %q: driver is required", svc.Name)
		}
		if svc.Pool != nil && svc.Pool.ConnMaxLifetime != "" {
			if _, err := time.ParseDuration(svc.Pool.ConnMaxLifetime); err != nil {
				return fmt.Errorf("service %q: invalid pool.conn_max_lifetime: %w", svc.Name, err)
			}
		}
	}
	if c.Ask.DefaultService != "" && len(c.Services) > 0 && !seen[c.Ask.DefaultService] {
		return fmt.Errorf("ask.default_service %q is not a configured service", c.Ask.DefaultService)
	}
	for field, value := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"auth.jwt_expiry":         c.Auth.JWTExpiry,
		"llm.timeout":             c.LLM.Timeout,
		"ask.timeout":             c.Ask.Timeout,
		"ask.schema_cache_ttl":    c.Ask.SchemaCacheTTL,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
	}
	return nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodySize:     "64KB",
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			},
			RateLimit: RateLimitConfig{RequestsPerMinute: 30},
		},
		Auth: AuthConfig{
			JWTExpiry:    "1h",
			APIKeyHeader: "X-API-Key",
		},
		LLM: LLMConfig{
			Provider: llm.ProviderOpenAI,
			Timeout:  "60s",
		},
		Ask: AskConfig{
			MaxRows:        1000,
			Timeout:        "30s",
			FormatResults:  true,
			SchemaCacheTTL: "5m",
		},
		MCP: MCPConfig{
			Enabled:   true,
			Transport: "stdio",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		History: HistoryConfig{
			Enabled:    true,
			MaxEntries: 10000,
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	cfg.LLM.APIKey = "${OPENAI_API_KEY}"
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Duration parses value, returning def when it is empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// ParseByteSize parses sizes such as "64KB", "10MB" or "512". Units are
// powers of 1024.
func ParseByteSize(value string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(value))
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, unit.suffix))
			break
		}
	}
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", value)
	}
	return n * multiplier, nil
}

// ToLLM converts the llm section into the provider factory config.
func (c LLMConfig) ToLLM() llm.Config {
	return llm.Config{
		Provider:    c.Provider,
		APIKey:      c.APIKey,
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     Duration(c.Timeout, 0),
	}
}

// ToModel converts a YAML service definition into a ServiceConfig.
// Pool settings not given in the file take the defaults.
func (s ServiceYAML) ToModel() model.ServiceConfig {
	pool := model.DefaultPoolConfig()
	if s.Pool != nil {
		if s.Pool.MaxOpenConns > 0 {
			pool.MaxOpenConns = s.Pool.MaxOpenConns
		}
		if s.Pool.MaxIdleConns > 0 {
			pool.MaxIdleConns = s.Pool.MaxIdleConns
		}
		pool.ConnMaxLifetime = Duration(s.Pool.ConnMaxLifetime, pool.ConnMaxLifetime)
	}
	return model.ServiceConfig{
		Name:               s.Name,
		Label:              s.Label,
		Driver:             s.Driver,
		DSN:                s.DSN,
		PrivateKeyPath:     s.PrivateKeyPath,
		Schema:             s.Schema,
		SensitiveColumns:   s.SensitiveColumns,
		CustomInstructions: s.CustomInstructions,
		IsActive:           true,
		Pool:               pool,
	}
}
