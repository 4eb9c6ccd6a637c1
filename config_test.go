package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mil-ad/glockctl/session"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestConfigPathHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/glockctl/config.yaml", configPath())
}

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, session.DefaultTempo, cfg.Tempo)
	assert.Equal(t, session.DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, transportProfile, cfg.Transport.Kind)
	assert.Equal(t, session.SerialPortUUID, cfg.Transport.ServiceUUID)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
device: Glockenspiel
tempo: 84
connect_timeout: 3s
strict_notes: true
transport:
  kind: tty
  port: /dev/rfcomm0
  baud: 115200
  service_uuid: 00001101-0000-1000-8000-00805F9B34FB
http:
  listen: 127.0.0.1:8080
  allowed_origins: ["http://localhost:3000"]
log:
  level: debug
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Glockenspiel", cfg.Device)
	assert.Equal(t, 84, cfg.Tempo)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.True(t, cfg.StrictNotes)
	assert.Equal(t, transportTTY, cfg.Transport.Kind)
	assert.Equal(t, "/dev/rfcomm0", cfg.Transport.Port)
	assert.Equal(t, 115200, cfg.Transport.Baud)
	// normalised to lower case
	assert.Equal(t, session.SerialPortUUID, cfg.Transport.ServiceUUID)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Listen)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.AllowedOrigins)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"tempo":     "tempo: 0\n",
		"timeout":   "connect_timeout: -1s\n",
		"uuid":      "transport:\n  service_uuid: spp\n",
		"kind":      "transport:\n  kind: usb\n",
		"channel":   "transport:\n  kind: rfcomm\n",
		"port":      "transport:\n  kind: tty\n",
		"log level": "log:\n  level: loud\n",
		"bad yaml":  "tempo: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestResolveDevice(t *testing.T) {
	cfg := defaultConfig()
	_, err := resolveDevice(cfg, "")
	assert.Error(t, err)

	cfg.Device = "Glockenspiel"
	name, err := resolveDevice(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "Glockenspiel", name)

	name, err = resolveDevice(cfg, "HC-05")
	require.NoError(t, err)
	assert.Equal(t, "HC-05", name)
}
