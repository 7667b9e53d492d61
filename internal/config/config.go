package config

import "time"

// Provider names accepted in llm.provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Default upstream endpoints and models per provider.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Transport TransportConfig `mapstructure:"transport"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// LLMConfig contains the upstream AI service settings.
type LLMConfig struct {
	Provider          string  `mapstructure:"provider" validate:"required,oneof=openai gemini"`
	APIKey            string  `mapstructure:"api_key" validate:"required"`
	BaseURL           string  `mapstructure:"base_url" validate:"omitempty,url"`
	Model             string  `mapstructure:"model"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" validate:"gt=0"`
	MaxRetries        int     `mapstructure:"max_retries" validate:"gte=1,lte=10"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" validate:"gte=0"`
	Temperature       float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
}

// ResolvedBaseURL returns BaseURL or the provider default.
func (c LLMConfig) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Provider == ProviderGemini {
		return DefaultGeminiBaseURL
	}
	return DefaultOpenAIBaseURL
}

// ResolvedModel returns Model or the provider default.
func (c LLMConfig) ResolvedModel() string {
	if c.Model != "" {
		return c.Model
	}
	if c.Provider == ProviderGemini {
		return DefaultGeminiModel
	}
	return DefaultOpenAIModel
}

// Timeout returns the per-request timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TransportConfig contains the network path settings.
type TransportConfig struct {
	ProxyURL                   string `mapstructure:"proxy_url" validate:"omitempty,url"`
	HealthCheckEnabled         bool   `mapstructure:"health_check_enabled"`
	HealthCheckIntervalSeconds int    `mapstructure:"health_check_interval_seconds" validate:"gt=0"`
	HealthCheckPath            string `mapstructure:"health_check_path"`
}

// RetryConfig contains the backoff settings shared by the executor and batch runner.
type RetryConfig struct {
	BaseDelayMs int     `mapstructure:"base_delay_ms" validate:"gte=0"`
	MaxDelayMs  int     `mapstructure:"max_delay_ms" validate:"gtefield=BaseDelayMs"`
	JitterRatio float64 `mapstructure:"jitter_ratio" validate:"gte=0,lte=1"`
}

// BatchConfig contains the bounded-concurrency batch settings.
type BatchConfig struct {
	MaxConcurrent      int `mapstructure:"max_concurrent" validate:"gte=1,lte=64"`
	RetryAttempts      int `mapstructure:"retry_attempts" validate:"gte=0,lte=10"`
	ItemTimeoutSeconds int `mapstructure:"item_timeout_seconds" validate:"gt=0"`
}

// DatabaseConfig contains the optional telemetry store settings. An empty URL
// disables persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains operator token settings. An empty secret disables the
// authenticated diagnostics endpoints.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}
