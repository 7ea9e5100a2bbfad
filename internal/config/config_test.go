package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSession_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "session.json", `{
		"host": "ftp.example.com",
		"port": 2121,
		"username": "reports",
		"password": "secret",
		"remote_root": "/outbound",
		"local_root": "/var/data/inbound",
		"poll_interval": "45s",
		"include": ["*.csv"],
		"exclude": ["tmp_*"],
		"max_retries": 5,
		"retry_backoff": "1s",
		"explicit_tls": true
	}`)

	cfg, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, "ftp.example.com", cfg.Host)
	assert.Equal(t, 2121, cfg.Port)
	assert.Equal(t, "reports", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, "/outbound", cfg.RemoteRoot)
	assert.Equal(t, 45*time.Second, cfg.PollInterval)
	assert.Equal(t, []string{"*.csv"}, cfg.Include)
	assert.Equal(t, []string{"tmp_*"}, cfg.Exclude)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.True(t, cfg.ExplicitTLS)
	assert.False(t, cfg.RunOnce())
}

func TestLoadSession_YAMLWithDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "session.yaml", `
host: ftp.example.com
username: reports
password: secret
remote_root: /outbound
local_root: /var/data/inbound
`)

	cfg, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, 21, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryBackoff)
	assert.False(t, cfg.ExplicitTLS)
}

func TestLoadSession_RunOnce(t *testing.T) {
	path := writeFile(t, t.TempDir(), "session.yaml", `
host: ftp.example.com
username: reports
remote_root: /outbound
local_root: /var/data/inbound
poll_interval: 0s
`)

	cfg, err := LoadSession(path)
	require.NoError(t, err)
	assert.True(t, cfg.RunOnce(), "zero poll interval means a single cycle")
}

func TestLoadSession_MissingRequiredField(t *testing.T) {
	for _, field := range []string{"host", "username", "remote_root", "local_root"} {
		t.Run(field, func(t *testing.T) {
			full := map[string]string{
				"host":        "host: ftp.example.com\n",
				"username":    "username: reports\n",
				"remote_root": "remote_root: /outbound\n",
				"local_root":  "local_root: /var/data\n",
			}
			delete(full, field)
			var content string
			for _, line := range full {
				content += line
			}
			path := writeFile(t, t.TempDir(), "session.yaml", content)

			_, err := LoadSession(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), field)
		})
	}
}

func TestLoadSession_InvalidPort(t *testing.T) {
	path := writeFile(t, t.TempDir(), "session.yaml", `
host: ftp.example.com
username: reports
remote_root: /outbound
local_root: /var/data
port: 70000
`)

	_, err := LoadSession(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}

func TestLoadSession_FileMissing(t *testing.T) {
	_, err := LoadSession(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "manifest.yaml", `
sessions:
  - id: nightly
    config: sessions/nightly.yaml
    status: state/nightly/status.json
    result: state/nightly/result.json
    summary: state/nightly/summary.json
    cache: state/nightly/cache.db
  - id: hourly
    config: /etc/ftpsync/hourly.yaml
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Sessions, 2)

	nightly := m.Sessions[0]
	assert.Equal(t, "nightly", nightly.ID)
	assert.Equal(t, filepath.Join(dir, "sessions", "nightly.yaml"), nightly.ConfigPath)
	assert.Equal(t, filepath.Join(dir, "state", "nightly", "status.json"), nightly.StatusPath)
	assert.Equal(t, filepath.Join(dir, "state", "nightly", "cache.db"), nightly.CachePath)

	hourly := m.Sessions[1]
	assert.Equal(t, "/etc/ftpsync/hourly.yaml", hourly.ConfigPath, "absolute paths pass through untouched")
	assert.Empty(t, hourly.StatusPath, "unset paths stay empty for the caller to default")
}

func TestLoadManifest_Empty(t *testing.T) {
	path := writeFile(t, t.TempDir(), "manifest.yaml", "sessions: []\n")

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sessions")
}

func TestLoadManifest_MissingID(t *testing.T) {
	path := writeFile(t, t.TempDir(), "manifest.yaml", `
sessions:
  - config: sessions/a.yaml
`)

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
}
