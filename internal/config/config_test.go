package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.ConfigFile)
	assert.Empty(t, cfg.GatewayURL)
	assert.Equal(t, "demo", cfg.Replay)
	assert.Equal(t, "default", cfg.Profile)
	assert.Equal(t, "default", cfg.Scenario)
	assert.True(t, cfg.Interactive)
	assert.Equal(t, 200*time.Millisecond, cfg.VolumeIndication.Interval)
	assert.Equal(t, 3, cfg.VolumeIndication.Smooth)
	assert.False(t, cfg.VolumeIndication.VAD)
	assert.Equal(t, "cli/cli.log", cfg.Log.File)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audiomix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway_url: https://gateway.example.com/v1
channel: room1
profile: music_high_quality
scenario: chatroom_entertainment
interactive: false
volume_indication:
  interval: 500ms
  vad: true
log:
  file: /tmp/audiomix.log
  compress: true
metrics_addr: ":9102"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "https://gateway.example.com/v1", cfg.GatewayURL)
	assert.Equal(t, "room1", cfg.Channel)
	assert.Equal(t, "music_high_quality", cfg.Profile)
	assert.Equal(t, "chatroom_entertainment", cfg.Scenario)
	assert.False(t, cfg.Interactive)
	assert.Equal(t, 500*time.Millisecond, cfg.VolumeIndication.Interval)
	assert.Equal(t, 3, cfg.VolumeIndication.Smooth)
	assert.True(t, cfg.VolumeIndication.VAD)
	assert.Equal(t, "/tmp/audiomix.log", cfg.Log.File)
	assert.True(t, cfg.Log.Compress)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AUDIOMIX_CHANNEL", "from-env")
	t.Setenv("AUDIOMIX_VOLUME_INDICATION_SMOOTH", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Channel)
	assert.Equal(t, 7, cfg.VolumeIndication.Smooth)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channel: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
