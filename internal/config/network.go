package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// NetworkSettings controls the fetch layer (C3): timeouts, retry/backoff,
// and rate limiting. Defaults are filled in, then overridden by
// network_settings.json if present, then by environment variables,
// matching the precedence the teacher's own config.LoadDepsConfig applies
// for bin/cache/tmp directories.
type NetworkSettings struct {
	ConnectTimeoutSeconds int     `json:"connect_timeout_seconds"`
	TotalTimeoutSeconds   int     `json:"total_timeout_seconds"`
	MaxRetries            int     `json:"max_retries"`
	BackoffBaseSeconds     float64 `json:"backoff_base_seconds"`
	BackoffMaxSeconds      float64 `json:"backoff_max_seconds"`
	RateLimitPerHost       float64 `json:"rate_limit_per_host_rps"`
	UserAgent              string  `json:"user_agent"`
	GithubToken            string  `json:"-"`
	CacheTTLSeconds        int     `json:"cache_ttl_seconds"`
}

// DefaultNetworkSettings returns the engine's built-in defaults.
func DefaultNetworkSettings() NetworkSettings {
	return NetworkSettings{
		ConnectTimeoutSeconds: 10,
		TotalTimeoutSeconds:   60,
		MaxRetries:            3,
		BackoffBaseSeconds:    1.0,
		BackoffMaxSeconds:     30.0,
		RateLimitPerHost:      2.0,
		UserAgent:             "packwatch/" + "1.0",
		CacheTTLSeconds:       3600,
	}
}

func (n NetworkSettings) ConnectTimeout() time.Duration {
	return time.Duration(n.ConnectTimeoutSeconds) * time.Second
}

func (n NetworkSettings) TotalTimeout() time.Duration {
	return time.Duration(n.TotalTimeoutSeconds) * time.Second
}

func (n NetworkSettings) BackoffBase() time.Duration {
	return time.Duration(n.BackoffBaseSeconds * float64(time.Second))
}

func (n NetworkSettings) BackoffMax() time.Duration {
	return time.Duration(n.BackoffMaxSeconds * float64(time.Second))
}

func (n NetworkSettings) CacheTTL() time.Duration {
	return time.Duration(n.CacheTTLSeconds) * time.Second
}

// LoadNetworkSettings reads path (network_settings.json), overlays it onto
// the defaults, then applies PACKWATCH_* environment overrides. A missing
// file is not an error — the defaults (plus any env overrides) are
// returned as-is, mirroring the teacher's tolerant LoadDepsConfig.
func LoadNetworkSettings(path string) (NetworkSettings, error) {
	settings := DefaultNetworkSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if jsonErr := json.Unmarshal(data, &settings); jsonErr != nil {
				return NetworkSettings{}, jsonErr
			}
		} else if !os.IsNotExist(err) {
			return NetworkSettings{}, err
		}
	}

	applyEnvOverrides(&settings)
	return settings, nil
}

func applyEnvOverrides(s *NetworkSettings) {
	if v, ok := os.LookupEnv("PACKWATCH_CONNECT_TIMEOUT_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.ConnectTimeoutSeconds = n
		}
	}
	if v, ok := os.LookupEnv("PACKWATCH_TOTAL_TIMEOUT_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.TotalTimeoutSeconds = n
		}
	}
	if v, ok := os.LookupEnv("PACKWATCH_MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxRetries = n
		}
	}
	if v, ok := os.LookupEnv("PACKWATCH_RATE_LIMIT_PER_HOST_RPS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.RateLimitPerHost = f
		}
	}
	if v, ok := os.LookupEnv("PACKWATCH_CACHE_TTL_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.CacheTTLSeconds = n
		}
	}
	if v, ok := os.LookupEnv("GITHUB_TOKEN"); ok && v != "" {
		s.GithubToken = v
	}
	if v, ok := os.LookupEnv("PACKWATCH_GITHUB_TOKEN"); ok && v != "" {
		s.GithubToken = v
	}
}
