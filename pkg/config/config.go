package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"streamhub/pkg/env"
	"streamhub/pkg/logger"
	"streamhub/pkg/paths"
)

// SortMode selects the secondary ordering of ranked streams
type SortMode string

const (
	SortQualityThenProvider SortMode = "quality-then-provider"
	SortProviderThenQuality SortMode = "provider-then-quality"
)

// PlayerInternal is the preferredPlayer value for the built-in engine
const PlayerInternal = "internal"

// ParseSortMode normalizes a user value; unknown values fall back to quality-then-provider.
func ParseSortMode(s string) SortMode {
	switch SortMode(strings.ToLower(strings.TrimSpace(s))) {
	case SortProviderThenQuality:
		return SortProviderThenQuality
	default:
		return SortQualityThenProvider
	}
}

// Settings is the immutable snapshot of user options consumed by the engine.
// Always pass it by value; use Clone when handing it across goroutines.
type Settings struct {
	ExcludedQualities  []string `json:"excluded_qualities"`
	StreamSortMode     SortMode `json:"stream_sort_mode"`
	PreferredPlayer    string   `json:"preferred_player"`
	UseExternalPlayer  bool     `json:"use_external_player"`
	AutoplayBestStream bool     `json:"autoplay_best_stream"`
}

// Clone returns a copy that shares no slices with s
func (s Settings) Clone() Settings {
	s.ExcludedQualities = append([]string(nil), s.ExcludedQualities...)
	return s
}

// Internal reports whether the preferred player is the built-in engine
func (s Settings) Internal() bool {
	p := strings.ToLower(strings.TrimSpace(s.PreferredPlayer))
	return p == "" || p == PlayerInternal
}

// Config holds application configuration
type Config struct {
	AddonPort int    `json:"addon_port"`
	LogLevel  string `json:"log_level"`

	Settings

	// Probe
	ProbeBudgetMS        int `json:"probe_budget_ms"`
	ProbeCacheSize       int `json:"probe_cache_size"`
	ProbeCacheTTLSeconds int `json:"probe_cache_ttl_seconds"`

	// Aggregation. The timeout bounds manifest fetches only; stream requests
	// run until the provider answers or the query is cancelled.
	StillFetchingAfterMS   int `json:"still_fetching_after_ms"`
	ProviderTimeoutSeconds int `json:"provider_timeout_seconds"`

	// Platform this process routes playback for
	PlatformOS     string `json:"platform_os"`
	PlatformTablet bool   `json:"platform_tablet"`

	// Container formats each addon id declares it can serve natively, e.g.
	// {"org.example.mkv": ["mkv"]}
	ProviderFormats map[string][]string `json:"provider_formats,omitempty"`

	// API
	APIRateLimitRPS   float64 `json:"api_rate_limit_rps"`
	APIRateLimitBurst int     `json:"api_rate_limit_burst"`
	SecurityToken     string  `json:"security_token"`

	// Internal - where was this config loaded from?
	LoadedPath string `json:"-"`
}

// Default returns a configuration with every default filled in
func Default() *Config {
	return &Config{
		AddonPort: 7000,
		LogLevel:  "INFO",
		Settings: Settings{
			ExcludedQualities: []string{},
			StreamSortMode:    SortQualityThenProvider,
			PreferredPlayer:   PlayerInternal,
		},
		ProbeBudgetMS:          600,
		ProbeCacheSize:         512,
		ProbeCacheTTLSeconds:   1800,
		StillFetchingAfterMS:   8000,
		ProviderTimeoutSeconds: 45,
		PlatformOS:             "linux",
		APIRateLimitRPS:        20,
		APIRateLimitBurst:      40,
	}
}

// Load is intended for startup only. It loads configuration from config.json,
// applies environment variable overrides once, then saves the merged config.
// Priority: Environment variables (if not empty) > config.json > defaults
func Load() (*Config, error) {
	return LoadFrom(paths.GetDataDir())
}

// LoadFrom is Load against an explicit data directory
func LoadFrom(dataDir string) (*Config, error) {
	configPath := filepath.Join(dataDir, "config.json")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Warn("Failed to create data directory", "dir", dataDir, "err", err)
	}

	cfg := Default()
	cfg.LoadedPath = configPath

	if err := cfg.LoadFile(configPath); err != nil {
		if os.IsNotExist(err) {
			logger.Info("No config found, creating new one", "path", configPath)
		} else {
			logger.Warn("Failed to load config, using defaults", "path", configPath, "err", err)
		}
	} else {
		logger.Info("Loaded configuration", "path", configPath)
	}

	overrides, keys := env.ReadConfigOverrides()
	ApplyEnvOverrides(cfg, overrides, keys)
	cfg.Normalize()

	if err := cfg.Save(); err != nil {
		logger.Warn("Failed to save config on startup", "err", err)
	}

	return cfg, nil
}

// LoadFile overrides config with values from a JSON file
func (c *Config) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewDecoder(file).Decode(c)
}

// Normalize repairs out-of-range values so the rest of the app can trust them
func (c *Config) Normalize() {
	d := Default()
	c.StreamSortMode = ParseSortMode(string(c.StreamSortMode))
	if strings.TrimSpace(c.PreferredPlayer) == "" {
		c.PreferredPlayer = PlayerInternal
	}
	c.PreferredPlayer = strings.ToLower(strings.TrimSpace(c.PreferredPlayer))
	if c.ExcludedQualities == nil {
		c.ExcludedQualities = []string{}
	}
	if c.ProbeBudgetMS <= 0 {
		c.ProbeBudgetMS = d.ProbeBudgetMS
	}
	if c.ProbeCacheSize <= 0 {
		c.ProbeCacheSize = d.ProbeCacheSize
	}
	if c.ProbeCacheTTLSeconds <= 0 {
		c.ProbeCacheTTLSeconds = d.ProbeCacheTTLSeconds
	}
	if c.StillFetchingAfterMS <= 0 {
		c.StillFetchingAfterMS = d.StillFetchingAfterMS
	}
	if c.ProviderTimeoutSeconds <= 0 {
		c.ProviderTimeoutSeconds = d.ProviderTimeoutSeconds
	}
	if c.AddonPort <= 0 {
		c.AddonPort = d.AddonPort
	}
	if c.APIRateLimitRPS <= 0 {
		c.APIRateLimitRPS = d.APIRateLimitRPS
	}
	if c.APIRateLimitBurst <= 0 {
		c.APIRateLimitBurst = d.APIRateLimitBurst
	}
	c.PlatformOS = strings.ToLower(strings.TrimSpace(c.PlatformOS))
	if c.PlatformOS == "" {
		c.PlatformOS = d.PlatformOS
	}
}

// Snapshot returns a copy of the user settings
func (c *Config) Snapshot() Settings {
	return c.Settings.Clone()
}

func (c *Config) ProbeBudget() time.Duration {
	return time.Duration(c.ProbeBudgetMS) * time.Millisecond
}

func (c *Config) StillFetchingAfter() time.Duration {
	return time.Duration(c.StillFetchingAfterMS) * time.Millisecond
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// Save saves the current configuration to the file it was loaded from
func (c *Config) Save() error {
	path := c.LoadedPath
	if path == "" {
		path = "config.json"
	}
	return c.SaveFile(path)
}

// SaveFile saves the current configuration to a JSON file
func (c *Config) SaveFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(c)
}

// keySet returns true if s is in list.
func keySet(list []string, s string) bool {
	for _, k := range list {
		if k == s {
			return true
		}
	}
	return false
}

// ApplyEnvOverrides applies environment-derived overrides to cfg (used at startup only).
// Only fields present in keys are applied, so env vars override file values per setting.
func ApplyEnvOverrides(cfg *Config, o env.ConfigOverrides, keys []string) {
	if keySet(keys, env.KeyAddonPort) {
		cfg.AddonPort = o.AddonPort
	}
	if keySet(keys, env.KeyLogLevel) {
		cfg.LogLevel = o.LogLevel
	}
	if keySet(keys, env.KeyExcludedQualities) {
		cfg.ExcludedQualities = o.ExcludedQualities
	}
	if keySet(keys, env.KeyStreamSortMode) {
		cfg.StreamSortMode = SortMode(o.StreamSortMode)
	}
	if keySet(keys, env.KeyPreferredPlayer) {
		cfg.PreferredPlayer = o.PreferredPlayer
	}
	if keySet(keys, env.KeyUseExternalPlayer) {
		cfg.UseExternalPlayer = o.UseExternalPlayer
	}
	if keySet(keys, env.KeyAutoplayBestStream) {
		cfg.AutoplayBestStream = o.AutoplayBestStream
	}
	if keySet(keys, env.KeyProbeBudgetMS) {
		cfg.ProbeBudgetMS = o.ProbeBudgetMS
	}
	if keySet(keys, env.KeyProviderTimeout) {
		cfg.ProviderTimeoutSeconds = o.ProviderTimeoutSec
	}
	if keySet(keys, env.KeyStillFetchingAfter) {
		cfg.StillFetchingAfterMS = o.StillFetchingAfterMS
	}
	if keySet(keys, env.KeyPlatformOS) {
		cfg.PlatformOS = o.PlatformOS
	}
	if keySet(keys, env.KeyPlatformTablet) {
		cfg.PlatformTablet = o.PlatformTablet
	}
	if keySet(keys, env.KeySecurityToken) {
		cfg.SecurityToken = o.SecurityToken
	}
}

// GetEnvOverrideKeys returns config JSON keys that have environment variable overrides set.
func GetEnvOverrideKeys() []string {
	return env.OverrideKeys()
}
