package config

import (
	"fmt"
	"time"
)

// Config is the fully resolved runtime configuration for one agentrunner
// process: LLM provider selection, sandbox defaults, loop/recovery tuning,
// and the ambient logging/observability/session-store options.
type Config struct {
	// Core engine tuning.
	MaxIterations          int  `yaml:"max_iterations"`
	DirectModeMaxIterations int `yaml:"direct_mode_max_iterations"`
	LLMCallTimeoutSeconds   int  `yaml:"llm_call_timeout"`
	ToolCallTimeoutSeconds  int  `yaml:"tool_call_timeout"`
	ContextAutosave         bool `yaml:"context_autosave"`
	AutoCleanup             bool `yaml:"auto_cleanup"`

	SandboxImage     string `yaml:"sandbox_image"`
	SandboxMountPath string `yaml:"sandbox_mount_path"`
	WorkspaceRoot    string `yaml:"workspace_root"`

	LoopDetectionWarnThreshold  int `yaml:"loop_detection_warn_threshold"`
	LoopDetectionAbortThreshold int `yaml:"loop_detection_abort_threshold"`
	RecoveryMaxRetries          int `yaml:"recovery_max_retries"`

	// LLM provider selection.
	LLM LLMConfig `yaml:"llm"`

	// Transport.
	ListenAddr string `yaml:"listen_addr"`

	// Ambient stack (added).
	LogLevel             string `yaml:"log_level"`
	LogFormat            string `yaml:"log_format"` // text|json
	OTelExporterEndpoint string `yaml:"otel_exporter_endpoint"`
	MetricsAddr          string `yaml:"metrics_addr"`
	SessionIdleTTLSeconds int   `yaml:"session_idle_ttl"`
	SessionStoreBackend   string `yaml:"session_store_backend"` // memory|sqlite
	SessionStorePath      string `yaml:"session_store_path"`

	SessionsRoot string `yaml:"sessions_root"`

	// Scheduled maintenance jobs (session TTL sweep, optional user-defined
	// jobs), run by internal/cron.Scheduler.
	Cron CronConfig `yaml:"cron"`

	// Tools gates which tools get registered into a session (see
	// internal/tools/policy.Policy/Profile).
	Tools ToolsConfig `yaml:"tools"`

	// WebSearch configures the web_search tool's backend. Left zero-valued,
	// web_search stays unregistered; web_fetch works standalone either way.
	WebSearch WebSearchConfig `yaml:"web_search"`
}

// WebSearchConfig selects and credentials the web_search tool's backend.
type WebSearchConfig struct {
	Backend     string `yaml:"backend"` // searxng|duckduckgo|brave
	SearXNGURL  string `yaml:"searxng_url"`
	BraveAPIKey string `yaml:"brave_api_key"`
}

// ToolsConfig selects the tool-access profile and explicit allow/deny
// overrides applied to every session's tool registry.
type ToolsConfig struct {
	Profile string   `yaml:"profile"` // minimal|coding|full
	Allow   []string `yaml:"allow,omitempty"`
	Deny    []string `yaml:"deny,omitempty"`
}

// LLMConfig selects and parameterizes the LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic|openai|bedrock
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Region   string `yaml:"region"` // bedrock
}

// Defaults returns a Config populated with agentrunner's documented defaults.
func Defaults() Config {
	return Config{
		MaxIterations:           100,
		DirectModeMaxIterations: 20,
		LLMCallTimeoutSeconds:   120,
		ToolCallTimeoutSeconds:  300,
		ContextAutosave:         true,
		AutoCleanup:             false,

		SandboxImage:     "python:3.11-slim",
		SandboxMountPath: "/workspace",
		WorkspaceRoot:    "./workspace",

		LoopDetectionWarnThreshold:  2,
		LoopDetectionAbortThreshold: 3,
		RecoveryMaxRetries:          3,

		ListenAddr: ":8080",

		LogLevel:              "info",
		LogFormat:             "text",
		SessionIdleTTLSeconds: 3600,
		SessionStoreBackend:   "memory",
		SessionsRoot:          "./sessions",

		Tools: ToolsConfig{Profile: "coding"},
	}
}

// LLMCallTimeout returns the configured LLM call timeout as a Duration.
func (c Config) LLMCallTimeout() time.Duration {
	return time.Duration(c.LLMCallTimeoutSeconds) * time.Second
}

// ToolCallTimeout returns the configured tool call timeout as a Duration.
func (c Config) ToolCallTimeout() time.Duration {
	return time.Duration(c.ToolCallTimeoutSeconds) * time.Second
}

// SessionIdleTTL returns the configured session idle TTL as a Duration.
func (c Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLSeconds) * time.Second
}

// Load reads path, applies defaults for zero-valued fields, and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		decoded, err := decodeRawConfig(raw)
		if err != nil {
			return nil, err
		}
		cfg = mergeDefaults(cfg, *decoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeDefaults overlays non-zero fields from decoded onto defaults.
func mergeDefaults(defaults, decoded Config) Config {
	if decoded.MaxIterations != 0 {
		defaults.MaxIterations = decoded.MaxIterations
	}
	if decoded.DirectModeMaxIterations != 0 {
		defaults.DirectModeMaxIterations = decoded.DirectModeMaxIterations
	}
	if decoded.LLMCallTimeoutSeconds != 0 {
		defaults.LLMCallTimeoutSeconds = decoded.LLMCallTimeoutSeconds
	}
	if decoded.ToolCallTimeoutSeconds != 0 {
		defaults.ToolCallTimeoutSeconds = decoded.ToolCallTimeoutSeconds
	}
	defaults.ContextAutosave = decoded.ContextAutosave
	defaults.AutoCleanup = decoded.AutoCleanup
	if decoded.SandboxImage != "" {
		defaults.SandboxImage = decoded.SandboxImage
	}
	if decoded.SandboxMountPath != "" {
		defaults.SandboxMountPath = decoded.SandboxMountPath
	}
	if decoded.WorkspaceRoot != "" {
		defaults.WorkspaceRoot = decoded.WorkspaceRoot
	}
	if decoded.LoopDetectionWarnThreshold != 0 {
		defaults.LoopDetectionWarnThreshold = decoded.LoopDetectionWarnThreshold
	}
	if decoded.LoopDetectionAbortThreshold != 0 {
		defaults.LoopDetectionAbortThreshold = decoded.LoopDetectionAbortThreshold
	}
	if decoded.RecoveryMaxRetries != 0 {
		defaults.RecoveryMaxRetries = decoded.RecoveryMaxRetries
	}
	if decoded.LLM.Provider != "" {
		defaults.LLM = decoded.LLM
	}
	if decoded.ListenAddr != "" {
		defaults.ListenAddr = decoded.ListenAddr
	}
	if decoded.LogLevel != "" {
		defaults.LogLevel = decoded.LogLevel
	}
	if decoded.LogFormat != "" {
		defaults.LogFormat = decoded.LogFormat
	}
	if decoded.OTelExporterEndpoint != "" {
		defaults.OTelExporterEndpoint = decoded.OTelExporterEndpoint
	}
	if decoded.MetricsAddr != "" {
		defaults.MetricsAddr = decoded.MetricsAddr
	}
	if decoded.SessionIdleTTLSeconds != 0 {
		defaults.SessionIdleTTLSeconds = decoded.SessionIdleTTLSeconds
	}
	if decoded.SessionStoreBackend != "" {
		defaults.SessionStoreBackend = decoded.SessionStoreBackend
	}
	if decoded.SessionStorePath != "" {
		defaults.SessionStorePath = decoded.SessionStorePath
	}
	if decoded.SessionsRoot != "" {
		defaults.SessionsRoot = decoded.SessionsRoot
	}
	if len(decoded.Cron.Jobs) > 0 {
		defaults.Cron = decoded.Cron
	}
	if decoded.Tools.Profile != "" {
		defaults.Tools.Profile = decoded.Tools.Profile
	}
	if len(decoded.Tools.Allow) > 0 {
		defaults.Tools.Allow = decoded.Tools.Allow
	}
	if len(decoded.Tools.Deny) > 0 {
		defaults.Tools.Deny = decoded.Tools.Deny
	}
	if decoded.WebSearch.Backend != "" {
		defaults.WebSearch.Backend = decoded.WebSearch.Backend
	}
	if decoded.WebSearch.SearXNGURL != "" {
		defaults.WebSearch.SearXNGURL = decoded.WebSearch.SearXNGURL
	}
	if decoded.WebSearch.BraveAPIKey != "" {
		defaults.WebSearch.BraveAPIKey = decoded.WebSearch.BraveAPIKey
	}
	return defaults
}

// Validate checks structural invariants on the resolved configuration.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive")
	}
	if c.LoopDetectionWarnThreshold <= 0 || c.LoopDetectionAbortThreshold <= c.LoopDetectionWarnThreshold {
		return fmt.Errorf("loop_detection_abort_threshold must exceed loop_detection_warn_threshold")
	}
	switch c.SessionStoreBackend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported session_store_backend %q", c.SessionStoreBackend)
	}
	switch c.WebSearch.Backend {
	case "", "searxng", "duckduckgo", "brave":
	default:
		return fmt.Errorf("unsupported web_search.backend %q", c.WebSearch.Backend)
	}
	return nil
}
