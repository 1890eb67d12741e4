package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LESSONNOTIFY_DATABASE__URL", "postgres://localhost/notify")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 100, cfg.Dispatch.BatchSize)
	assert.Equal(t, 3, cfg.Dispatch.MaxRetries)
	assert.Equal(t,
		[]time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second},
		cfg.Dispatch.RetryDelays,
	)
	assert.True(t, cfg.Database.Migrate)
	assert.False(t, cfg.Email.Enabled)
	assert.False(t, cfg.SMS.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
database:
  url: postgres://localhost/notify
log:
  level: debug
  format: text
dispatch:
  secret: tick-secret
  batch_size: 25
  retry_delays: [30s, 2m]
sms:
  enabled: true
  account_sid: AC123
  auth_token: token
  from_number: "+12125550100"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "tick-secret", cfg.Dispatch.Secret)
	assert.Equal(t, 25, cfg.Dispatch.BatchSize)
	assert.Equal(t, []time.Duration{30 * time.Second, 2 * time.Minute}, cfg.Dispatch.RetryDelays)
	assert.True(t, cfg.SMS.Enabled)
	assert.Equal(t, "AC123", cfg.SMS.AccountSID)

	// Unset keys keep their defaults.
	assert.Equal(t, 3, cfg.Dispatch.MaxRetries)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
database:
  url: postgres://file-host/notify
`), 0o600))

	t.Setenv("LESSONNOTIFY_SERVER__PORT", "7070")
	t.Setenv("LESSONNOTIFY_DATABASE__URL", "postgres://env-host/notify")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "postgres://env-host/notify", cfg.Database.URL)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing database url",
			env:     map[string]string{},
			wantErr: "database.url is required",
		},
		{
			name: "bad log format",
			env: map[string]string{
				"LESSONNOTIFY_DATABASE__URL": "postgres://localhost/notify",
				"LESSONNOTIFY_LOG__FORMAT":   "xml",
			},
			wantErr: "unknown log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
