package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/routing"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

// DefaultConfigPath is the YAML file Load reads when present.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-insights.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	CORS           CORSConfig           `yaml:"cors"`
	Sessions       SessionsConfig       `yaml:"sessions"`
	Query          QueryConfig          `yaml:"query"`
	Routing        RoutingConfig        `yaml:"routing"`
	LLM            LLMConfig            `yaml:"llm"`
	Anthropic      AnthropicConfig      `yaml:"anthropic"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	// OriginsStr is a comma-separated list of origins.
	OriginsStr string `yaml:"origins" env:"CORS_ORIGINS" env-default:"http://localhost:5173,http://localhost:8080"`

	// Origins is the parsed list from OriginsStr (not from config file).
	Origins []string `yaml:"-"`
}

// SessionsConfig holds upload and session expiry settings.
type SessionsConfig struct {
	UploadsDir string `yaml:"uploads_dir" env:"UPLOADS_DIR" env-default:"uploads"`

	// TTLHours is how long an uploaded dataset lives after its last write.
	TTLHours int `yaml:"ttl_hours" env:"SESSION_TTL_HOURS" env-default:"2"`

	// MaxFileSizeMB limits the size of a single upload.
	MaxFileSizeMB int `yaml:"max_file_size_mb" env:"MAX_FILE_SIZE_MB" env-default:"100"`

	// CleanupIntervalMinutes is how often the reaper looks for expired sessions.
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes" env:"SESSION_CLEANUP_INTERVAL_MINUTES" env-default:"60"`
}

// QueryConfig holds dataset query settings.
type QueryConfig struct {
	// MaxRows caps the rows returned by a query. Zero returns every row.
	MaxRows int `yaml:"max_rows" env:"QUERY_MAX_ROWS" env-default:"0"`
}

// RoutingConfig controls tiered routing between generation backends.
type RoutingConfig struct {
	// EnabledStr is parsed into Enabled; cleanenv would replace a false bool with the default.
	EnabledStr string `yaml:"enabled" env:"ROUTING_ENABLED" env-default:"true"`

	// Enabled is the parsed value of EnabledStr (not from config file).
	Enabled bool `yaml:"-"`

	MediumBackend  string  `yaml:"medium_backend" env:"ROUTING_MEDIUM_BACKEND" env-default:"gpt-3.5-turbo"`
	ComplexBackend string  `yaml:"complex_backend" env:"ROUTING_COMPLEX_BACKEND" env-default:"gpt-4"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"GENERATION_TIMEOUT_SECONDS" env-default:"30"`
	Temperature    float64 `yaml:"temperature" env:"GENERATION_TEMPERATURE" env-default:"0.2"`

	// TemplatesFile optionally names a YAML file of extra templates, matched after the built-in ones.
	TemplatesFile string `yaml:"templates_file" env:"ROUTING_TEMPLATES_FILE" env-default:""`
}

// LLMConfig holds the OpenAI-compatible endpoint used for non-Anthropic backends.
type LLMConfig struct {
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`

	// Model is the default backend, used when routing is disabled.
	Model string `yaml:"model" env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`

	APIKey string `yaml:"-" env:"OPENAI_API_KEY"` // Secret - not in YAML
}

// AnthropicConfig holds the Anthropic endpoint. Backends whose name starts
// with "claude" or appears in Models are served by Anthropic.
type AnthropicConfig struct {
	BaseURL   string   `yaml:"base_url" env:"ANTHROPIC_BASE_URL" env-default:"https://api.anthropic.com/v1"`
	APIKey    string   `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
	ModelsStr string   `yaml:"models" env:"ANTHROPIC_MODELS" env-default:""`
	Models    []string `yaml:"-"`
	MaxTokens int      `yaml:"max_tokens" env:"ANTHROPIC_MAX_TOKENS" env-default:"2048"`
}

// CircuitBreakerConfig controls fail-fast behavior for unhealthy backends.
type CircuitBreakerConfig struct {
	Threshold    int `yaml:"threshold" env:"CIRCUIT_BREAKER_THRESHOLD" env-default:"5"`
	ResetSeconds int `yaml:"reset_seconds" env:"CIRCUIT_BREAKER_RESET_SECONDS" env-default:"30"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigPath, version)
}

// LoadFile reads configuration from path with environment variable overrides.
// A missing file is not an error; configuration then comes from the
// environment and defaults only.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.CORS.Origins = splitList(c.CORS.OriginsStr)
	c.Anthropic.Models = splitList(c.Anthropic.ModelsStr)

	enabled, err := strconv.ParseBool(strings.TrimSpace(c.Routing.EnabledStr))
	if err != nil {
		return fmt.Errorf("routing.enabled must be a boolean, got %q", c.Routing.EnabledStr)
	}
	c.Routing.Enabled = enabled
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	// Both must be provided together or both empty
	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// If both provided, verify files exist (actual readability checked by tls.LoadX509KeyPair at startup)
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

func (c *Config) validate() error {
	if c.Sessions.UploadsDir == "" {
		return fmt.Errorf("sessions.uploads_dir is required")
	}
	if c.Sessions.TTLHours <= 0 {
		return fmt.Errorf("sessions.ttl_hours must be positive, got %d", c.Sessions.TTLHours)
	}
	if c.Sessions.MaxFileSizeMB <= 0 {
		return fmt.Errorf("sessions.max_file_size_mb must be positive, got %d", c.Sessions.MaxFileSizeMB)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Routing.Temperature < 0 || c.Routing.Temperature > 2 {
		return fmt.Errorf("routing.temperature must be between 0 and 2, got %g", c.Routing.Temperature)
	}
	if c.Query.MaxRows < 0 {
		return fmt.Errorf("query.max_rows must not be negative, got %d", c.Query.MaxRows)
	}

	// Anthropic accepts temperatures up to 1 only.
	if c.Routing.Temperature > 1 {
		providers := c.ProviderConfig()
		for _, name := range c.RoutingPolicy().BackendNames() {
			if providers.IsAnthropicModel(name) {
				return fmt.Errorf("routing.temperature must be between 0 and 1 for Anthropic backend %s, got %g", name, c.Routing.Temperature)
			}
		}
	}
	return nil
}

// IsTLS reports whether the server should serve HTTPS.
func (c *Config) IsTLS() bool {
	return c.TLSCertPath != "" && c.TLSKeyPath != ""
}

// RoutingPolicy returns the immutable routing policy.
func (c *Config) RoutingPolicy() routing.Policy {
	return routing.Policy{
		Enabled: c.Routing.Enabled,
		Backends: map[models.Tier]string{
			models.TierMedium:  c.Routing.MediumBackend,
			models.TierComplex: c.Routing.ComplexBackend,
		},
		DefaultBackend: c.LLM.Model,
	}
}

// Templates returns the built-in templates followed by those of Routing.TemplatesFile.
func (c *Config) Templates() ([]routing.Template, error) {
	templates := append([]routing.Template(nil), routing.DefaultTemplates...)
	if c.Routing.TemplatesFile == "" {
		return templates, nil
	}
	custom, err := routing.LoadTemplateFile(c.Routing.TemplatesFile)
	if err != nil {
		return nil, err
	}
	for _, tmpl := range custom {
		for _, builtin := range routing.DefaultTemplates {
			if tmpl.Name == builtin.Name {
				return nil, fmt.Errorf("custom template %q shadows a built-in template", tmpl.Name)
			}
		}
	}
	return append(templates, custom...), nil
}

// GeneratorConfig returns the generation timeout and temperature.
func (c *Config) GeneratorConfig() services.GeneratorConfig {
	return services.GeneratorConfig{
		Timeout:     time.Duration(c.Routing.TimeoutSeconds) * time.Second,
		Temperature: c.Routing.Temperature,
	}
}

// SessionConfig returns the session store settings.
func (c *Config) SessionConfig() services.SessionConfig {
	return services.SessionConfig{
		UploadsDir:     c.Sessions.UploadsDir,
		TTL:            time.Duration(c.Sessions.TTLHours) * time.Hour,
		MaxUploadBytes: int64(c.Sessions.MaxFileSizeMB) << 20,
	}
}

// CleanupInterval returns how often expired sessions are reaped.
func (c *Config) CleanupInterval() time.Duration {
	if c.Sessions.CleanupIntervalMinutes <= 0 {
		return services.DefaultCleanupInterval
	}
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}

// ProviderConfig returns the backend credentials. Endpoints on localhost are
// rewritten for Docker so a model server on the host stays reachable.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		OpenAIEndpoint:     ResolveURLForDocker(c.LLM.BaseURL),
		OpenAIAPIKey:       c.LLM.APIKey,
		AnthropicEndpoint:  ResolveURLForDocker(c.Anthropic.BaseURL),
		AnthropicAPIKey:    c.Anthropic.APIKey,
		AnthropicMaxTokens: c.Anthropic.MaxTokens,
		AnthropicModels:    c.Anthropic.Models,
	}
}

// BreakerConfig returns the circuit breaker settings.
func (c *Config) BreakerConfig() llm.CircuitBreakerConfig {
	cfg := llm.DefaultCircuitBreakerConfig()
	if c.CircuitBreaker.Threshold > 0 {
		cfg.Threshold = c.CircuitBreaker.Threshold
	}
	if c.CircuitBreaker.ResetSeconds > 0 {
		cfg.ResetAfter = time.Duration(c.CircuitBreaker.ResetSeconds) * time.Second
	}
	return cfg
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
