// Package config provides the configuration schema and loader for the
// Voxbridge gateway.
package config

import "time"

// LogLevel controls log verbosity for the Voxbridge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Transport selects how a remote tool server is reached.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// Config is the root configuration structure for Voxbridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Redis     RedisConfig     `yaml:"redis"`
	Classify  ClassifyConfig  `yaml:"classify"`
	Context   ContextConfig   `yaml:"context"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Queue     QueueConfig     `yaml:"queue"`
	Tools     ToolsConfig     `yaml:"tools"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds network and logging settings for the gateway.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Version is reported by the health endpoint. Usually injected at build
	// time; the config value is a fallback for development.
	Version string `yaml:"version"`
}

// AuthConfig configures the token authenticator.
type AuthConfig struct {
	// Secret is the symmetric signing key for bearer tokens. Required.
	Secret string `yaml:"secret"`

	// APIKeys maps static API keys to user identifiers.
	APIKeys map[string]string `yaml:"api_keys"`

	// TokenLifetime is the default token validity. Defaults to 1h.
	TokenLifetime time.Duration `yaml:"token_lifetime"`

	// MobileTokenLifetime is the validity for tokens issued to mobile
	// clients. Defaults to 24h.
	MobileTokenLifetime time.Duration `yaml:"mobile_token_lifetime"`
}

// RedisConfig configures the shared KV accelerator. When Addr is empty,
// Voxbridge runs with process-local state only.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ClassifyConfig tunes the intent classifier and its cache.
type ClassifyConfig struct {
	// CacheSize bounds the local classification cache. Defaults to 1000.
	CacheSize int `yaml:"cache_size"`

	// CacheTTL is the lifetime of cached classifications. Defaults to 1h.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ContextConfig tunes the conversation context store.
type ContextConfig struct {
	// MaxContexts bounds the local context map. Defaults to 100.
	MaxContexts int `yaml:"max_contexts"`

	// MaxHistory bounds per-context interaction history. Defaults to 20.
	MaxHistory int `yaml:"max_history"`

	// IdleExpiry is how long an idle context survives. Defaults to 30m.
	IdleExpiry time.Duration `yaml:"idle_expiry"`
}

// WorkflowConfig tunes the multi-step workflow engine.
type WorkflowConfig struct {
	// StepTimeout is the default per-step tool dispatch timeout.
	// Defaults to 30s; clamped to [1s, 300s].
	StepTimeout time.Duration `yaml:"step_timeout"`

	// MaxRetries is the per-step retry budget. Defaults to 3.
	MaxRetries int `yaml:"max_retries"`
}

// SessionsConfig tunes the WebSocket session multiplexer.
type SessionsConfig struct {
	// IdleTimeout is how long a silent session survives. Defaults to 300s.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// JanitorInterval is how often idle sessions are swept. Defaults to 60s.
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

// QueueConfig tunes the priority batch queue in front of classification.
type QueueConfig struct {
	// Capacity bounds the number of queued requests. Defaults to 1024.
	Capacity int `yaml:"capacity"`

	// BatchSize is the number of requests drained per batch. Defaults to 16.
	BatchSize int `yaml:"batch_size"`

	// BatchTimeout is how long the drainer waits for a full batch before
	// processing a partial one. Defaults to 50ms.
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// ToolsConfig declares the tool services the broker owns.
type ToolsConfig struct {
	AI       AIToolConfig       `yaml:"ai"`
	Voice    VoiceToolConfig    `yaml:"voice"`
	Email    EmailToolConfig    `yaml:"email"`
	Search   SearchToolConfig   `yaml:"search"`
	Document DocumentToolConfig `yaml:"document"`

	// Remote lists external MCP tool servers to register alongside the
	// built-in services.
	Remote []RemoteToolConfig `yaml:"remote"`
}

// AIToolConfig configures the AI provider tool service.
type AIToolConfig struct {
	// Providers maps provider name ("openai", "anthropic", "gemini", ...)
	// to its API key. Keys listed here are also accepted by the token
	// authenticator as recognised external service keys.
	Providers map[string]string `yaml:"providers"`

	// DefaultProvider is used when a request names none. Defaults to the
	// first configured provider in sorted order.
	DefaultProvider string `yaml:"default_provider"`
}

// VoiceToolConfig configures speech-to-text and text-to-speech.
type VoiceToolConfig struct {
	// OpenAIKey authenticates Whisper transcription and TTS synthesis calls.
	OpenAIKey string `yaml:"openai_key"`

	// TTSVoice selects the synthesis voice. Defaults to "alloy".
	TTSVoice string `yaml:"tts_voice"`
}

// EmailToolConfig configures the email tool service.
type EmailToolConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// SearchToolConfig configures the web-search tool service.
type SearchToolConfig struct {
	// BingKey enables the Bing provider when non-empty.
	BingKey string `yaml:"bing_key"`

	// SerpKey enables the SerpAPI provider when non-empty.
	SerpKey string `yaml:"serp_key"`

	// CacheTTL is the merged-result cache lifetime. Defaults to 1h.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DocumentToolConfig configures the document generation tool service.
type DocumentToolConfig struct {
	// OutputDir is where generated documents are written before a reference
	// is returned to the client. Defaults to the OS temp directory.
	OutputDir string `yaml:"output_dir"`
}

// RemoteToolConfig describes one external MCP tool server.
type RemoteToolConfig struct {
	// Name registers the server under this tool name.
	Name string `yaml:"name"`

	// Transport selects stdio or streamable-http.
	Transport Transport `yaml:"transport"`

	// Command is the executable plus arguments for stdio transport.
	Command string `yaml:"command"`

	// URL is the endpoint for streamable-http transport.
	URL string `yaml:"url"`

	// Env holds extra environment variables for stdio servers.
	Env map[string]string `yaml:"env"`
}

// AnalyticsConfig tunes the behaviour analytics sink.
type AnalyticsConfig struct {
	// BufferSize bounds the in-memory event buffer. Defaults to 1000.
	BufferSize int `yaml:"buffer_size"`

	// BatchSize is the number of events drained per profile update batch.
	// Defaults to 50.
	BatchSize int `yaml:"batch_size"`

	// Retention is how long inactive profiles are kept. Defaults to 30 days.
	Retention time.Duration `yaml:"retention"`

	// PostgresDSN enables durable profile storage when non-empty.
	PostgresDSN string `yaml:"postgres_dsn"`
}
