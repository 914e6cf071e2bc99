package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Empty(t, cfg.Devices)
}

func TestLoad_ParsesDevicesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  host: 0.0.0.0
  port: 9000
log_level: debug
devices:
  - name: bench printer
    serial: ABC123
    ip_address: 192.168.1.50
    protocol_kind: websocket-sdcp
    proxy_enabled: true
    proxy_ws_port: 7125
    proxy_video_port: 8088
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "ABC123", cfg.Devices[0].Serial)
	assert.True(t, cfg.Devices[0].ProxyEnabled)
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr())
}

func TestLoad_EnvOverridesFileValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	t.Setenv("BRIDGE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [this is not a mapping"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
