package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whotterre/log-watcher/internal/config"
)

// =============================================================================
// DEFAULTS
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "/var/log/nginx/access.log", cfg.LogPath)
	assert.Equal(t, "", cfg.WebhookURL)
	assert.Equal(t, 2.0, cfg.ErrorRateThreshold)
	assert.Equal(t, 200, cfg.WindowSize)
	assert.Equal(t, 300*time.Second, cfg.AlertCooldown)
	assert.False(t, cfg.MaintenanceMode)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "end", cfg.StartAt)
	assert.Equal(t, 5*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, 3, cfg.NotifyRetries)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.False(t, cfg.NotifyEnabled())
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NGINX_LOG_PATH", "/tmp/access.log")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T00/B00/XXX")
	t.Setenv("ERROR_RATE_THRESHOLD", "7.5")
	t.Setenv("WINDOW_SIZE", "50")
	t.Setenv("ALERT_COOLDOWN_SEC", "60")
	t.Setenv("MAINTENANCE_MODE", "true")
	t.Setenv("WATCHER_POLL_INTERVAL", "500ms")
	t.Setenv("WATCHER_NOTIFY_RETRIES", "5")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/access.log", cfg.LogPath)
	assert.Equal(t, "https://hooks.slack.com/services/T00/B00/XXX", cfg.WebhookURL)
	assert.Equal(t, 7.5, cfg.ErrorRateThreshold)
	assert.Equal(t, 50, cfg.WindowSize)
	assert.Equal(t, time.Minute, cfg.AlertCooldown)
	assert.True(t, cfg.MaintenanceMode)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5, cfg.NotifyRetries)
	assert.True(t, cfg.NotifyEnabled())
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("ERROR_RATE_THRESHOLD", "not-a-number")
	t.Setenv("WINDOW_SIZE", "ten")
	t.Setenv("ALERT_COOLDOWN_SEC", "5m") // must be plain seconds
	t.Setenv("WATCHER_POLL_INTERVAL", "fast")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 2.0, cfg.ErrorRateThreshold)
	assert.Equal(t, 200, cfg.WindowSize)
	assert.Equal(t, 300*time.Second, cfg.AlertCooldown)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval)
}

func TestLoad_BooleanTruthySet(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"one", "1", true},
		{"true_lower", "true", true},
		{"true_upper", "TRUE", true},
		{"yes", "yes", true},
		{"yes_mixed", "Yes", true},
		{"zero", "0", false},
		{"false", "false", false},
		{"no", "no", false},
		{"garbage", "enabled", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MAINTENANCE_MODE", tt.value)

			cfg, err := config.Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.MaintenanceMode)
		})
	}
}

// =============================================================================
// NORMALIZATION
// =============================================================================

func TestLoad_OutOfRangeValuesClamped(t *testing.T) {
	t.Setenv("WINDOW_SIZE", "0")
	t.Setenv("ERROR_RATE_THRESHOLD", "-3")
	t.Setenv("WATCHER_QUEUE_SIZE", "-1")
	t.Setenv("WATCHER_START_AT", "middle")
	t.Setenv("WATCHER_LOG_FORMAT", "xml")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.WindowSize)
	assert.Equal(t, 2.0, cfg.ErrorRateThreshold)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, "end", cfg.StartAt)
	assert.Equal(t, "auto", cfg.LogFormat)
}

func TestLoad_InvalidWebhookURLDisablesDelivery(t *testing.T) {
	t.Setenv("SLACK_WEBHOOK_URL", "not a url")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.WebhookURL)
	assert.False(t, cfg.NotifyEnabled())
}

// =============================================================================
// YAML FILE
// =============================================================================

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watcher.yaml")

	yaml := `
log_path: /srv/logs/access.log
window_size: 25
alert_cooldown: 90s
error_rate_threshold: 10
start_at: start
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/logs/access.log", cfg.LogPath)
	assert.Equal(t, 25, cfg.WindowSize)
	assert.Equal(t, 90*time.Second, cfg.AlertCooldown)
	assert.Equal(t, 10.0, cfg.ErrorRateThreshold)
	assert.Equal(t, "start", cfg.StartAt)
	// Settings absent from the file keep their defaults.
	assert.Equal(t, 3, cfg.NotifyRetries)
}

func TestLoad_YAMLEnvExpansion(t *testing.T) {
	t.Setenv("LOGS_DIR", "/data/logs")

	dir := t.TempDir()
	path := filepath.Join(dir, "watcher.yaml")

	yaml := `
log_path: ${LOGS_DIR}/access.log
status_addr: ${STATUS_ADDR:-127.0.0.1:9901}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/logs/access.log", cfg.LogPath)
	assert.Equal(t, "127.0.0.1:9901", cfg.StatusAddr, "unset var should use the inline default")
}

func TestLoad_EnvWinsOverYAML(t *testing.T) {
	t.Setenv("WINDOW_SIZE", "40")

	dir := t.TempDir()
	path := filepath.Join(dir, "watcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window_size: 15\n"), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.WindowSize)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := config.Load("/nonexistent/watcher.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window_size: [unclosed\n"), 0600))

	_, err := config.Load(path)
	require.Error(t, err)
}
