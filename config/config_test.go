package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	found, err := Load(filepath.Join(t.TempDir(), "nope.toml"), &cfg)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[logging]
level = "debug"
format = "json"

[database]
[database.write]
host = "db1.internal"
name = "sera"
user = "sera"

[engine]
sweep_interval = "1m"
processing_timeout = "5m"
log_retention = "30d"

[mailer]
host = "relay.example.com:465"
tls = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := NewDefaultConfig()
	found, err := Load(path, &cfg)
	require.NoError(t, err)
	assert.True(t, found)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "db1.internal", cfg.Database.Write.Host)

	interval, err := cfg.Engine.GetSweepInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, interval)

	retention, err := cfg.Engine.GetLogRetention()
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, retention)

	assert.True(t, cfg.Mailer.UseTLS)
	assert.True(t, cfg.Mailer.GetTLSVerify())
}

func TestValidateRejectsBadDurations(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Engine.SweepInterval = "whenever"
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresWriteEndpoint(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Database.Write = nil
	assert.Error(t, cfg.Validate())
}

func TestEngineDefaults(t *testing.T) {
	var e EngineConfig
	interval, err := e.GetSweepInterval()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, interval)

	timeout, err := e.GetProcessingTimeout()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, timeout)

	assert.Equal(t, 200, e.GetCandidateBatchSize())
}
