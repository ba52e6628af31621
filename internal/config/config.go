// Package config loads and validates the watcher configuration.
//
// DESIGN: Environment variables are the primary surface so the watcher drops
// into a compose file without extra artifacts; the keys and defaults match
// the deployment environment the watcher ships in. An optional YAML file can
// supply base values for installs that prefer one, with ${VAR:-default}
// expansion, but environment variables always win. Invalid values fall back
// to documented defaults with a single warning instead of failing startup:
// the watcher is a sidecar and must come up even when an operator fat-fingers
// a threshold.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the immutable per-run configuration for the log watcher.
// Constructed once at startup and passed into each component; no ambient
// lookups happen after Load returns.
type Config struct {
	// Watched log and alert sink.
	LogPath    string `yaml:"log_path"`    // access log to tail
	WebhookURL string `yaml:"webhook_url"` // Slack incoming-webhook URL; empty disables delivery

	// Detection settings.
	ErrorRateThreshold float64       `yaml:"error_rate_threshold"` // percent of 5xx in window that trips the alert
	WindowSize         int           `yaml:"window_size"`          // records kept in the sliding window
	AlertCooldown      time.Duration `yaml:"alert_cooldown"`       // minimum gap between alerts of one kind
	MaintenanceMode    bool          `yaml:"maintenance_mode"`     // true suppresses all alert evaluation

	// Tailer settings.
	PollInterval time.Duration `yaml:"poll_interval"` // fallback poll cadence when no fs event arrives
	StartAt      string        `yaml:"start_at"`      // "end" (default) or "start" of the file on first open

	// Delivery settings.
	NotifyTimeout time.Duration `yaml:"notify_timeout"` // per-attempt webhook timeout
	NotifyRetries int           `yaml:"notify_retries"` // delivery attempts per alert
	QueueSize     int           `yaml:"queue_size"`     // pending alerts before drop-new engages

	// Observability.
	StatusAddr    string `yaml:"status_addr"` // optional listen address for /healthz and /status
	EventsLogPath string `yaml:"events_log"`  // optional JSONL journal path
	Debug         bool   `yaml:"debug"`       // debug-level logging
	LogFormat     string `yaml:"log_format"`  // "auto", "json" or "console"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogPath:            "/var/log/nginx/access.log",
		WebhookURL:         "",
		ErrorRateThreshold: 2,
		WindowSize:         200,
		AlertCooldown:      300 * time.Second,
		MaintenanceMode:    false,
		PollInterval:       200 * time.Millisecond,
		StartAt:            "end",
		NotifyTimeout:      5 * time.Second,
		NotifyRetries:      3,
		QueueSize:          64,
		StatusAddr:         "",
		EventsLogPath:      "",
		Debug:              false,
		LogFormat:          "auto",
	}
}

// expandEnvWithDefaults expands environment variables with support for default
// values. Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	// Pattern matches ${VAR:-default} or ${VAR}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// Load builds the configuration: defaults, then the optional YAML file, then
// environment overrides, then normalization. Only an unreadable or
// unparsable explicitly-named file is fatal.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		expanded := expandEnvWithDefaults(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	return cfg, nil
}

// applyEnvOverrides applies environment variables on top of whatever the
// defaults and the YAML file produced. An env var that is set but invalid
// leaves the current value in place and warns once.
func (c *Config) applyEnvOverrides() {
	overrideString("NGINX_LOG_PATH", &c.LogPath)
	overrideString("SLACK_WEBHOOK_URL", &c.WebhookURL)
	overrideFloat("ERROR_RATE_THRESHOLD", &c.ErrorRateThreshold)
	overrideInt("WINDOW_SIZE", &c.WindowSize)
	overrideSeconds("ALERT_COOLDOWN_SEC", &c.AlertCooldown)
	overrideBool("MAINTENANCE_MODE", &c.MaintenanceMode)
	overrideDuration("WATCHER_POLL_INTERVAL", &c.PollInterval)
	overrideString("WATCHER_START_AT", &c.StartAt)
	overrideDuration("WATCHER_NOTIFY_TIMEOUT", &c.NotifyTimeout)
	overrideInt("WATCHER_NOTIFY_RETRIES", &c.NotifyRetries)
	overrideInt("WATCHER_QUEUE_SIZE", &c.QueueSize)
	overrideString("WATCHER_STATUS_ADDR", &c.StatusAddr)
	overrideString("WATCHER_EVENTS_LOG", &c.EventsLogPath)
	overrideBool("WATCHER_DEBUG", &c.Debug)
	overrideString("WATCHER_LOG_FORMAT", &c.LogFormat)
}

// normalize clamps out-of-range values back to defaults, warning once per
// field. Startup must succeed with any input.
func (c *Config) normalize() {
	d := Default()

	if c.LogPath == "" {
		c.LogPath = d.LogPath
	}
	if c.WindowSize < 1 {
		warnInvalid("window_size", c.WindowSize, d.WindowSize)
		c.WindowSize = d.WindowSize
	}
	if c.ErrorRateThreshold < 0 {
		warnInvalid("error_rate_threshold", c.ErrorRateThreshold, d.ErrorRateThreshold)
		c.ErrorRateThreshold = d.ErrorRateThreshold
	}
	if c.AlertCooldown < 0 {
		warnInvalid("alert_cooldown", c.AlertCooldown, d.AlertCooldown)
		c.AlertCooldown = d.AlertCooldown
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = d.NotifyTimeout
	}
	if c.NotifyRetries < 1 {
		warnInvalid("notify_retries", c.NotifyRetries, d.NotifyRetries)
		c.NotifyRetries = d.NotifyRetries
	}
	if c.QueueSize < 1 {
		warnInvalid("queue_size", c.QueueSize, d.QueueSize)
		c.QueueSize = d.QueueSize
	}

	switch c.StartAt {
	case "end", "start":
	default:
		warnInvalid("start_at", c.StartAt, d.StartAt)
		c.StartAt = d.StartAt
	}

	switch c.LogFormat {
	case "auto", "json", "console":
	default:
		warnInvalid("log_format", c.LogFormat, d.LogFormat)
		c.LogFormat = d.LogFormat
	}

	if c.WebhookURL != "" {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			log.Warn().
				Str("webhook_url", c.WebhookURL).
				Msg("config: webhook URL is not a valid http(s) URL, delivery disabled")
			c.WebhookURL = ""
		}
	}
}

// NotifyEnabled reports whether a delivery sink is configured.
func (c *Config) NotifyEnabled() bool { return c.WebhookURL != "" }

func warnInvalid(field string, got, def any) {
	log.Warn().
		Str("field", field).
		Interface("value", got).
		Interface("default", def).
		Msg("config: invalid value, using default")
}

func overrideString(key string, dst *string) {
	if raw, ok := os.LookupEnv(key); ok && raw != "" {
		*dst = raw
	}
}

// overrideBool treats "1", "true" and "yes" (case-insensitive) as true and
// every other set value as false.
func overrideBool(key string, dst *bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		*dst = true
	default:
		*dst = false
	}
}

func overrideInt(key string, dst *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Int("default", *dst).
			Msg("config: invalid integer, using default")
		return
	}
	*dst = v
}

func overrideFloat(key string, dst *float64) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Float64("default", *dst).
			Msg("config: invalid number, using default")
		return
	}
	*dst = v
}

// overrideSeconds parses an integer number of seconds.
func overrideSeconds(key string, dst *time.Duration) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Dur("default", *dst).
			Msg("config: invalid seconds value, using default")
		return
	}
	*dst = time.Duration(v) * time.Second
}

func overrideDuration(key string, dst *time.Duration) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Dur("default", *dst).
			Msg("config: invalid duration, using default")
		return
	}
	*dst = v
}
