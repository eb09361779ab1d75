package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is used when no explicit path is given.
const DefaultConfigFile = "refinery.yaml"

// defaults returns the built-in configuration. User YAML merges on top;
// non-zero user values override.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:          ":8787",
			ReadRateLimitPerMin: 60,
			SignalsCacheTTLMS:   30000,
		},
		LLM: LLMConfig{
			Temperature: 0.2,
			TimeoutMS:   30000,
		},
		Heartbeat: HeartbeatConfig{
			BaseMS: 300000,
			MinMS:  5000,
			MaxMS:  3600000,
		},
		Analyzer: AnalyzerConfig{
			BatchMax:                    20,
			MaxRetries:                  5,
			AnalysisReuseWindowMS:       86400000,
			SignalDupWindowMS:           21600000,
			RelevancePrimaryThreshold:   80,
			RelevanceSecondaryThreshold: 60,
			DigestCadenceMS:             43200000,
		},
		Retention: RetentionConfig{
			LogRetentionMS:   604800000,
			JanitorCadenceMS: 43200000,
		},
	}
}

// Initialize loads, merges, and validates the configuration file. This is
// the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read the YAML file
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Parse YAML
//  4. Merge user values over built-in defaults
//  5. Validate
func Initialize(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = DefaultConfigFile
	}
	log := slog.With("config_file", configFile)
	log.Info("Initializing configuration")

	data, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(configFile, fmt.Errorf("%w: %s", ErrConfigNotFound, configFile))
		}
		return nil, NewLoadError(configFile, err)
	}

	data = ExpandEnv(data)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, NewLoadError(configFile, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	cfg := defaults()
	if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
		return nil, NewLoadError(configFile, fmt.Errorf("merge configuration: %w", err))
	}
	cfg.configFile = configFile

	if err := validate(cfg); err != nil {
		return nil, err
	}

	log.Info("Configuration initialized successfully",
		"listen_addr", cfg.Server.ListenAddr,
		"mirror_enabled", cfg.MirrorEnabled(),
		"seed_feeds", len(cfg.Feeds),
		"extra_scrub_patterns", len(cfg.Scrub.ExtraPatterns))
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.LLM.Endpoint == "" {
		return NewValidationError("llm", "endpoint", ErrMissingRequiredField)
	}
	if cfg.LLM.APIKey == "" {
		return NewValidationError("llm", "api_key", ErrMissingRequiredField)
	}
	// Analysis runs with near-deterministic generation; higher temperatures
	// destabilize the JSON contract.
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 0.3 {
		return NewValidationError("llm", "temperature",
			fmt.Errorf("%w: must be within [0, 0.3]", ErrInvalidValue))
	}

	// Mirroring is optional, but a half-configured mirror is a mistake.
	if cfg.Chat.SendEndpoint != "" && cfg.Chat.SendToken == "" {
		return NewValidationError("chat", "send_token", ErrMissingRequiredField)
	}
	if cfg.Mirror.PrimaryChannelID != "" && cfg.Chat.SendEndpoint == "" {
		return NewValidationError("chat", "send_endpoint",
			fmt.Errorf("%w: required when mirror.primary_channel_id is set", ErrMissingRequiredField))
	}

	if cfg.Server.ReadRateLimitPerMin <= 0 {
		return NewValidationError("server", "read_rate_limit_per_min",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.Server.SignalsCacheTTLMS <= 0 {
		return NewValidationError("server", "signals_cache_ttl_ms",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}

	hb := cfg.Heartbeat
	if hb.MinMS <= 0 || hb.BaseMS < hb.MinMS || hb.MaxMS < hb.BaseMS {
		return NewValidationError("heartbeat", "",
			fmt.Errorf("%w: require 0 < min_heartbeat_ms <= base_heartbeat_ms <= max_heartbeat_ms", ErrInvalidValue))
	}

	an := cfg.Analyzer
	if an.BatchMax <= 0 || an.MaxRetries <= 0 ||
		an.AnalysisReuseWindowMS <= 0 || an.SignalDupWindowMS <= 0 || an.DigestCadenceMS <= 0 {
		return NewValidationError("analyzer", "",
			fmt.Errorf("%w: batch, retry, window, and cadence settings must be positive", ErrInvalidValue))
	}
	if an.RelevanceSecondaryThreshold <= 0 || an.RelevancePrimaryThreshold > 100 ||
		an.RelevanceSecondaryThreshold > an.RelevancePrimaryThreshold {
		return NewValidationError("analyzer", "relevance thresholds",
			fmt.Errorf("%w: require 0 < secondary <= primary <= 100", ErrInvalidValue))
	}

	if cfg.Retention.LogRetentionMS <= 0 || cfg.Retention.JanitorCadenceMS <= 0 {
		return NewValidationError("retention", "",
			fmt.Errorf("%w: retention settings must be positive", ErrInvalidValue))
	}

	for _, p := range cfg.Scrub.ExtraPatterns {
		if p.Name == "" || p.Pattern == "" {
			return NewValidationError("scrub", "extra_patterns",
				fmt.Errorf("%w: name and pattern are required", ErrMissingRequiredField))
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return NewValidationError("scrub", p.Name,
				fmt.Errorf("%w: %v", ErrInvalidValue, err))
		}
	}

	for _, f := range cfg.Feeds {
		if f.Name == "" || f.URL == "" {
			return NewValidationError("feeds", "",
				fmt.Errorf("%w: name and url are required", ErrMissingRequiredField))
		}
	}

	if cfg.Slack.Enabled && (cfg.Slack.Token == "" || cfg.Slack.Channel == "") {
		return NewValidationError("slack", "",
			fmt.Errorf("%w: token and channel are required when enabled", ErrMissingRequiredField))
	}

	return nil
}
