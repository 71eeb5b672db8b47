package livesvc

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
id = "lobby-1"

[battlepass]
season = 3
flush_interval = "10s"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "lobby-1", cfg.Server.ID)
	assert.Equal(t, 3, cfg.BattlePass.Season)
	assert.Equal(t, 10*time.Second, cfg.BattlePass.FlushInterval.Std())
	assert.Equal(t, 10000, cfg.Entitlements.CacheSize)
	assert.Equal(t, "lobby-1", cfg.ProgressServerID())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
id = "lobby-1"

[log]
level = "INFO"
`)
	t.Setenv("LIVESVC_BATTLEPASS_PROGRESS_SERVER_ID", "network")
	t.Setenv("LIVESVC_LOG_LEVEL", "DEBUG")
	t.Setenv("LIVESVC_LEADERBOARD_REFRESH_INTERVAL", "15s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "network", cfg.ProgressServerID())
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, 15*time.Second, cfg.Leaderboard.RefreshInterval.Std())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "blank server", body: "[server]\nid = \"\"\n"},
		{name: "zero season", body: "[battlepass]\nseason = 0\n"},
		{name: "bad duration", body: "[battlepass]\nflush_interval = \"soon\"\n"},
		{name: "archive without bucket", body: "[archive]\nenabled = true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
