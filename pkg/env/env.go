// Package env consolidates all environment variable reading for the application.
// Config overrides are applied only at startup (see config.Load).
package env

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names (single source of truth)
const (
	AddonPort            = "ADDON_PORT"
	LogLevelVar          = "LOG_LEVEL"
	ExcludedQualities    = "EXCLUDED_QUALITIES"
	StreamSortMode       = "STREAM_SORT_MODE"
	PreferredPlayer      = "PREFERRED_PLAYER"
	UseExternalPlayer    = "USE_EXTERNAL_PLAYER"
	AutoplayBestStream   = "AUTOPLAY_BEST_STREAM"
	ProbeBudgetMS        = "PROBE_BUDGET_MS"
	ProviderTimeoutSec   = "PROVIDER_TIMEOUT_SECONDS"
	StillFetchingAfterMS = "STILL_FETCHING_AFTER_MS"
	PlatformOS           = "PLATFORM_OS"
	PlatformTablet       = "PLATFORM_TABLET"
	SecurityToken        = "SECURITY_TOKEN"
	TZVar                = "TZ"
)

// Config JSON keys returned by OverrideKeys (for UI warnings)
const (
	KeyAddonPort          = "addon_port"
	KeyLogLevel           = "log_level"
	KeyExcludedQualities  = "excluded_qualities"
	KeyStreamSortMode     = "stream_sort_mode"
	KeyPreferredPlayer    = "preferred_player"
	KeyUseExternalPlayer  = "use_external_player"
	KeyAutoplayBestStream = "autoplay_best_stream"
	KeyProbeBudgetMS      = "probe_budget_ms"
	KeyProviderTimeout    = "provider_timeout_seconds"
	KeyStillFetchingAfter = "still_fetching_after_ms"
	KeyPlatformOS         = "platform_os"
	KeyPlatformTablet     = "platform_tablet"
	KeySecurityToken      = "security_token"
)

// TZ returns the TZ environment variable (e.g. for logger timezone).
func TZ() string {
	return os.Getenv(TZVar)
}

// LogLevel returns LOG_LEVEL with default "INFO" (for early logger init before config).
func LogLevel() string {
	if v := os.Getenv(LogLevelVar); v != "" {
		return v
	}
	return "INFO"
}

// ConfigOverrides holds all config values that can be set via environment variables.
type ConfigOverrides struct {
	AddonPort            int
	LogLevel             string
	ExcludedQualities    []string
	StreamSortMode       string
	PreferredPlayer      string
	UseExternalPlayer    bool
	AutoplayBestStream   bool
	ProbeBudgetMS        int
	ProviderTimeoutSec   int
	StillFetchingAfterMS int
	PlatformOS           string
	PlatformTablet       bool
	SecurityToken        string
}

// ReadConfigOverrides reads all relevant environment variables once and returns
// overrides plus the list of config JSON keys that were set.
func ReadConfigOverrides() (ConfigOverrides, []string) {
	var o ConfigOverrides
	var keys []string

	if n, ok := getInt(AddonPort); ok {
		o.AddonPort = n
		keys = append(keys, KeyAddonPort)
	}
	if v := os.Getenv(LogLevelVar); v != "" {
		o.LogLevel = v
		keys = append(keys, KeyLogLevel)
	}
	if v, ok := os.LookupEnv(ExcludedQualities); ok {
		o.ExcludedQualities = splitList(v)
		keys = append(keys, KeyExcludedQualities)
	}
	if v := os.Getenv(StreamSortMode); v != "" {
		o.StreamSortMode = v
		keys = append(keys, KeyStreamSortMode)
	}
	if v := os.Getenv(PreferredPlayer); v != "" {
		o.PreferredPlayer = v
		keys = append(keys, KeyPreferredPlayer)
	}
	if b, ok := getBool(UseExternalPlayer); ok {
		o.UseExternalPlayer = b
		keys = append(keys, KeyUseExternalPlayer)
	}
	if b, ok := getBool(AutoplayBestStream); ok {
		o.AutoplayBestStream = b
		keys = append(keys, KeyAutoplayBestStream)
	}
	if n, ok := getInt(ProbeBudgetMS); ok {
		o.ProbeBudgetMS = n
		keys = append(keys, KeyProbeBudgetMS)
	}
	if n, ok := getInt(ProviderTimeoutSec); ok {
		o.ProviderTimeoutSec = n
		keys = append(keys, KeyProviderTimeout)
	}
	if n, ok := getInt(StillFetchingAfterMS); ok {
		o.StillFetchingAfterMS = n
		keys = append(keys, KeyStillFetchingAfter)
	}
	if v := os.Getenv(PlatformOS); v != "" {
		o.PlatformOS = strings.ToLower(v)
		keys = append(keys, KeyPlatformOS)
	}
	if b, ok := getBool(PlatformTablet); ok {
		o.PlatformTablet = b
		keys = append(keys, KeyPlatformTablet)
	}
	if v := os.Getenv(SecurityToken); v != "" {
		o.SecurityToken = v
		keys = append(keys, KeySecurityToken)
	}

	return o, keys
}

// OverrideKeys returns the config JSON keys that have environment overrides set.
func OverrideKeys() []string {
	_, keys := ReadConfigOverrides()
	return keys
}

// splitList parses a comma separated list, dropping blank entries.
func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	return strings.ToLower(v) == "true" || v == "1", true
}
