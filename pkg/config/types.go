// Package config loads and validates refinery.yaml: server address, LLM and
// chat credentials, mirror routing, scrub patterns, operator notifications,
// and seed feeds. Environment variables are expanded with {{.VAR}} template
// syntax before parsing.
package config

// Config is the umbrella configuration object returned by Initialize and
// threaded through the application.
type Config struct {
	configFile string // for reference in error reporting

	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Chat      ChatConfig      `yaml:"chat"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Retention RetentionConfig `yaml:"retention"`
	Scrub     ScrubConfig     `yaml:"scrub"`
	Slack     SlackConfig     `yaml:"slack"`
	Feeds     []FeedSeed      `yaml:"feeds"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// ReadRateLimitPerMin caps read-API requests per remote IP per minute.
	ReadRateLimitPerMin int `yaml:"read_rate_limit_per_min"`
	// SignalsCacheTTLMS bounds staleness of the cached first signals page.
	SignalsCacheTTLMS int `yaml:"signals_cache_ttl_ms"`
}

// HeartbeatConfig bounds the elastic tick interval.
type HeartbeatConfig struct {
	BaseMS int `yaml:"base_heartbeat_ms"`
	MinMS  int `yaml:"min_heartbeat_ms"`
	MaxMS  int `yaml:"max_heartbeat_ms"`
}

// AnalyzerConfig tunes batching, retries, promotion, and reuse.
type AnalyzerConfig struct {
	BatchMax              int `yaml:"batch_max"`
	MaxRetries            int `yaml:"max_retries"`
	AnalysisReuseWindowMS int `yaml:"analysis_reuse_window_ms"`
	SignalDupWindowMS     int `yaml:"signal_dup_window_ms"`
	// Relevance thresholds route promoted signals across mirror tiers.
	RelevancePrimaryThreshold   int `yaml:"relevance_primary_threshold"`
	RelevanceSecondaryThreshold int `yaml:"relevance_secondary_threshold"`
	DigestCadenceMS             int `yaml:"digest_cadence_ms"`
}

// RetentionConfig governs the janitor.
type RetentionConfig struct {
	LogRetentionMS   int `yaml:"log_retention_ms"`
	JanitorCadenceMS int `yaml:"janitor_cadence_ms"`
}

// LLMConfig holds the analysis model endpoint and generation settings.
type LLMConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

// ChatConfig holds the outbound chat-platform send settings.
type ChatConfig struct {
	SendEndpoint string `yaml:"send_endpoint"`
	SendToken    string `yaml:"send_token"`
}

// MirrorConfig names the outbound destinations and the labels the ingest
// loop guard recognizes as the mirror's own output.
type MirrorConfig struct {
	PrimaryChannelID   string   `yaml:"primary_channel_id"`
	SecondaryChannelID string   `yaml:"secondary_channel_id"`
	AdminChannelID     string   `yaml:"admin_channel_id"`
	OutboundLabels     []string `yaml:"outbound_labels"`
}

// ScrubConfig carries deployment-specific redaction rules appended after
// the built-ins.
type ScrubConfig struct {
	ExtraPatterns []ScrubPattern `yaml:"extra_patterns"`
}

// ScrubPattern is one user-defined redaction rule.
type ScrubPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// SlackConfig holds operator-notification settings.
type SlackConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// FeedSeed registers a feed channel at startup.
type FeedSeed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ConfigFile returns the path the configuration was loaded from.
func (c *Config) ConfigFile() string {
	return c.configFile
}

// MirrorEnabled reports whether outbound mirroring is configured.
func (c *Config) MirrorEnabled() bool {
	return c.Chat.SendEndpoint != "" && c.Mirror.PrimaryChannelID != ""
}
