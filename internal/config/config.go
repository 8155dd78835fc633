// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/solvarr/turnstiled/pkg/version"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxMaxBrowsers     = 20
	maxPagesPerBrowser = 10
	maxSolveTimeout    = 10 * time.Minute
	maxAcquireTimeout  = 5 * time.Minute
	maxMaxResults      = 100000
	maxRateLimitRPM    = 10000 // Maximum requests per minute per IP
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Browser settings
	Headless          bool
	UserAgent         string
	BrowserPath       string
	PersistentContext bool   // Keep a user data dir across instances
	UserDataDir       string // Base dir for persistent contexts

	// Pool settings
	MaxBrowsers        int
	PagesPerBrowser    int
	PoolAcquireTimeout time.Duration
	BrowserMaxAge      time.Duration // Instances older than this are recycled

	// Solve settings
	SolveTimeout     time.Duration
	MaxSolveAttempts int

	// Task registry
	MaxResults  int
	ResultsPath string // Empty disables persistence

	// Selectors settings
	SelectorsPath      string // Path to external selectors.yaml override file
	SelectorsHotReload bool   // Enable file watching for hot-reload of selectors

	// Logging
	LogLevel string

	// Metrics
	MetricsEnabled bool
	MetricsPort    int

	// Security
	RateLimitEnabled   bool
	RateLimitRPM       int      // Requests per minute per IP
	TrustProxy         bool     // Trust X-Forwarded-For headers (only enable behind a reverse proxy)
	CORSAllowedOrigins []string // Allowed CORS origins (empty = allow all with warning)
	AllowLocalTargets  bool     // Allow localhost/private-IP target urls (for local test pages)
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		// Server - default to localhost for security (prevents accidental exposure)
		// Set HOST=0.0.0.0 explicitly to bind to all interfaces
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 5000),

		// Browser
		Headless:          getEnvBool("HEADLESS", true),
		UserAgent:         getEnvString("USER_AGENT", ""),
		BrowserPath:       getEnvString("BROWSER_PATH", ""),
		PersistentContext: getEnvBool("PERSISTENT_CONTEXT", false),
		UserDataDir:       getEnvString("USER_DATA_DIR", ""),

		// Pool
		MaxBrowsers:        getEnvInt("MAX_BROWSERS", 10),
		PagesPerBrowser:    getEnvInt("PAGES_PER_BROWSER", 1),
		PoolAcquireTimeout: getEnvDuration("POOL_ACQUIRE_TIMEOUT", 30*time.Second),
		BrowserMaxAge:      getEnvDuration("BROWSER_MAX_AGE", 30*time.Minute),

		// Solving
		SolveTimeout:     getEnvDuration("SOLVE_TIMEOUT", 30*time.Second),
		MaxSolveAttempts: getEnvInt("MAX_SOLVE_ATTEMPTS", 10),

		// Task registry
		MaxResults:  getEnvInt("MAX_RESULTS", 1000),
		ResultsPath: getEnvString("RESULTS_PATH", ""),

		// Selectors
		SelectorsPath:      getEnvString("SELECTORS_PATH", ""),
		SelectorsHotReload: getEnvBool("SELECTORS_HOT_RELOAD", false),

		// Logging
		LogLevel: getEnvString("LOG_LEVEL", "info"),

		// Metrics - disabled by default
		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsPort:    getEnvInt("METRICS_PORT", 9090),

		// Security
		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", 60), // 60 requests per minute per IP
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
		CORSAllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),
		AllowLocalTargets:  getEnvBool("ALLOW_LOCAL_TARGETS", false),
	}
}

// MaxConcurrentSolves returns the pool's total page capacity.
func (c *Config) MaxConcurrentSolves() int {
	return c.MaxBrowsers * c.PagesPerBrowser
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	// Port validation - allow 0 for system-assigned ports
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 5000")
		c.Port = 5000
	}

	// BrowserPath validation - prevent path traversal attacks
	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().
				Str("path", c.BrowserPath).
				Msg("BrowserPath contains path traversal sequence (..), ignoring")
			c.BrowserPath = ""
		} else if !strings.HasPrefix(c.BrowserPath, "/") && !strings.HasPrefix(c.BrowserPath, "C:") && !strings.HasPrefix(c.BrowserPath, "c:") {
			log.Warn().
				Str("path", c.BrowserPath).
				Msg("BrowserPath should be an absolute path")
		}
	}

	// Headless browsers ship an obviously-headless UA string, which
	// Turnstile rejects. Substitute a realistic one when none is given.
	if c.Headless && c.UserAgent == "" {
		log.Warn().Msg("HEADLESS is true but USER_AGENT is empty, using built-in default")
		c.UserAgent = version.DefaultUserAgent
	}

	// Pool bounds
	if c.MaxBrowsers < 1 {
		log.Warn().Int("max", c.MaxBrowsers).Msg("Invalid MAX_BROWSERS, using default 10")
		c.MaxBrowsers = 10
	} else if c.MaxBrowsers > maxMaxBrowsers {
		log.Warn().
			Int("max", c.MaxBrowsers).
			Int("cap", maxMaxBrowsers).
			Msg("MAX_BROWSERS too large, capping to maximum")
		c.MaxBrowsers = maxMaxBrowsers
	}

	if c.PagesPerBrowser < 1 {
		log.Warn().Int("pages", c.PagesPerBrowser).Msg("Invalid PAGES_PER_BROWSER, using 1")
		c.PagesPerBrowser = 1
	} else if c.PagesPerBrowser > maxPagesPerBrowser {
		log.Warn().
			Int("pages", c.PagesPerBrowser).
			Int("cap", maxPagesPerBrowser).
			Msg("PAGES_PER_BROWSER too large, capping to maximum")
		c.PagesPerBrowser = maxPagesPerBrowser
	}

	// Acquire timeout validation (minimum 1 second)
	if c.PoolAcquireTimeout < time.Second {
		log.Warn().
			Dur("timeout", c.PoolAcquireTimeout).
			Msg("Pool acquire timeout too short, using 30s")
		c.PoolAcquireTimeout = 30 * time.Second
	} else if c.PoolAcquireTimeout > maxAcquireTimeout {
		log.Warn().
			Dur("timeout", c.PoolAcquireTimeout).
			Dur("max", maxAcquireTimeout).
			Msg("Pool acquire timeout too long, capping to maximum")
		c.PoolAcquireTimeout = maxAcquireTimeout
	}

	// Solve timeout validation
	if c.SolveTimeout < time.Second {
		log.Warn().Dur("timeout", c.SolveTimeout).Msg("Solve timeout too short, using 30s")
		c.SolveTimeout = 30 * time.Second
	} else if c.SolveTimeout > maxSolveTimeout {
		log.Warn().
			Dur("timeout", c.SolveTimeout).
			Dur("max", maxSolveTimeout).
			Msg("Solve timeout too long, capping to maximum")
		c.SolveTimeout = maxSolveTimeout
	}

	if c.MaxSolveAttempts < 1 {
		log.Warn().Int("attempts", c.MaxSolveAttempts).Msg("Invalid MAX_SOLVE_ATTEMPTS, using 10")
		c.MaxSolveAttempts = 10
	} else if c.MaxSolveAttempts > 100 {
		log.Warn().Int("attempts", c.MaxSolveAttempts).Msg("MAX_SOLVE_ATTEMPTS too high, capping at 100")
		c.MaxSolveAttempts = 100
	}

	// Browser max age validation (minimum 1 minute)
	if c.BrowserMaxAge < time.Minute {
		log.Warn().Dur("age", c.BrowserMaxAge).Msg("Browser max age too short, using 30m")
		c.BrowserMaxAge = 30 * time.Minute
	}

	// Registry bounds
	if c.MaxResults < 1 {
		log.Warn().Int("max", c.MaxResults).Msg("Invalid MAX_RESULTS, using 1000")
		c.MaxResults = 1000
	} else if c.MaxResults > maxMaxResults {
		log.Warn().
			Int("max", c.MaxResults).
			Int("cap", maxMaxResults).
			Msg("MAX_RESULTS too large, capping to maximum")
		c.MaxResults = maxMaxResults
	}

	// ResultsPath validation - prevent path traversal
	if c.ResultsPath != "" && strings.Contains(c.ResultsPath, "..") {
		log.Error().
			Str("path", c.ResultsPath).
			Msg("ResultsPath contains path traversal sequence (..), disabling persistence")
		c.ResultsPath = ""
	}

	// Selectors path validation
	if c.SelectorsPath != "" {
		if strings.Contains(c.SelectorsPath, "..") {
			log.Error().
				Str("path", c.SelectorsPath).
				Msg("SelectorsPath contains path traversal sequence (..), ignoring")
			c.SelectorsPath = ""
		} else if c.SelectorsHotReload {
			if _, err := os.Stat(c.SelectorsPath); os.IsNotExist(err) {
				log.Warn().
					Str("path", c.SelectorsPath).
					Msg("SelectorsPath does not exist - hot-reload will watch for file creation")
			}
		}
	}
	if c.SelectorsHotReload && c.SelectorsPath == "" {
		log.Warn().Msg("SELECTORS_HOT_RELOAD enabled but SELECTORS_PATH not set - hot-reload disabled")
		c.SelectorsHotReload = false
	}

	// PersistentContext needs somewhere to keep the profile
	if c.PersistentContext && c.UserDataDir == "" {
		log.Warn().Msg("PERSISTENT_CONTEXT enabled but USER_DATA_DIR not set - using temp profiles")
	}

	// Rate limit validation with upper bound
	if c.RateLimitEnabled {
		if c.RateLimitRPM < 1 {
			log.Warn().Int("rpm", c.RateLimitRPM).Msg("Invalid rate limit, using 60 RPM")
			c.RateLimitRPM = 60
		} else if c.RateLimitRPM > maxRateLimitRPM {
			log.Warn().
				Int("rpm", c.RateLimitRPM).
				Int("max", maxRateLimitRPM).
				Msg("Rate limit too high, capping to maximum")
			c.RateLimitRPM = maxRateLimitRPM
		}
	}

	// Log level validation
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	// Metrics port must not collide with the API port
	if c.MetricsEnabled {
		if c.MetricsPort < 1 || c.MetricsPort > 65535 {
			log.Warn().Int("port", c.MetricsPort).Msg("Invalid metrics port, using 9090")
			c.MetricsPort = 9090
		}
		if c.MetricsPort == c.Port {
			log.Error().
				Int("port", c.MetricsPort).
				Msg("METRICS_PORT conflicts with PORT, disabling metrics server")
			c.MetricsEnabled = false
		}
	}

	// CORS note: the middleware rejects cross-origin requests when no
	// origins are configured, so an empty list is the secure default.
	if len(c.CORSAllowedOrigins) == 0 {
		log.Info().Msg("CORS_ALLOWED_ORIGINS not set - cross-origin requests will be rejected")
	}
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
