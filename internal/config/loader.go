package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued tunables with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "dev"
	}
	if cfg.Auth.TokenLifetime <= 0 {
		cfg.Auth.TokenLifetime = time.Hour
	}
	if cfg.Auth.MobileTokenLifetime <= 0 {
		cfg.Auth.MobileTokenLifetime = 24 * time.Hour
	}
	if cfg.Classify.CacheSize <= 0 {
		cfg.Classify.CacheSize = 1000
	}
	if cfg.Classify.CacheTTL <= 0 {
		cfg.Classify.CacheTTL = time.Hour
	}
	if cfg.Context.MaxContexts <= 0 {
		cfg.Context.MaxContexts = 100
	}
	if cfg.Context.MaxHistory <= 0 {
		cfg.Context.MaxHistory = 20
	}
	if cfg.Context.IdleExpiry <= 0 {
		cfg.Context.IdleExpiry = 30 * time.Minute
	}
	if cfg.Workflow.StepTimeout <= 0 {
		cfg.Workflow.StepTimeout = 30 * time.Second
	}
	if cfg.Workflow.StepTimeout < time.Second {
		cfg.Workflow.StepTimeout = time.Second
	}
	if cfg.Workflow.StepTimeout > 300*time.Second {
		cfg.Workflow.StepTimeout = 300 * time.Second
	}
	if cfg.Workflow.MaxRetries <= 0 {
		cfg.Workflow.MaxRetries = 3
	}
	if cfg.Sessions.IdleTimeout <= 0 {
		cfg.Sessions.IdleTimeout = 300 * time.Second
	}
	if cfg.Sessions.JanitorInterval <= 0 {
		cfg.Sessions.JanitorInterval = 60 * time.Second
	}
	if cfg.Queue.Capacity <= 0 {
		cfg.Queue.Capacity = 1024
	}
	if cfg.Queue.BatchSize <= 0 {
		cfg.Queue.BatchSize = 16
	}
	if cfg.Queue.BatchTimeout <= 0 {
		cfg.Queue.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.Tools.Voice.TTSVoice == "" {
		cfg.Tools.Voice.TTSVoice = "alloy"
	}
	if cfg.Tools.Search.CacheTTL <= 0 {
		cfg.Tools.Search.CacheTTL = time.Hour
	}
	if cfg.Tools.Email.SMTPPort <= 0 {
		cfg.Tools.Email.SMTPPort = 587
	}
	if cfg.Analytics.BufferSize <= 0 {
		cfg.Analytics.BufferSize = 1000
	}
	if cfg.Analytics.BatchSize <= 0 {
		cfg.Analytics.BatchSize = 50
	}
	if cfg.Analytics.Retention <= 0 {
		cfg.Analytics.Retention = 30 * 24 * time.Hour
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Auth.Secret == "" {
		errs = append(errs, fmt.Errorf("auth.secret is required"))
	}
	if len(cfg.Auth.APIKeys) == 0 && len(cfg.Tools.AI.Providers) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys is empty and no tools.ai.providers are configured; no client could ever obtain a token"))
	}

	for i, srv := range cfg.Tools.Remote {
		prefix := fmt.Sprintf("tools.remote[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}
