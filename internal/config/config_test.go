package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tarm", cfg.Serial.Driver)
	assert.Equal(t, 100*time.Millisecond, cfg.Serial.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Serial.FrameInterval)
	assert.Equal(t, "tgp58", cfg.Serial.Printer.Model)
	assert.False(t, cfg.Serial.Deposit.Enabled)
	assert.True(t, cfg.Ledger.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Empty(t, cfg.Security.JWT.Secret)
}

func TestLoadDeviceSection(t *testing.T) {
	path := writeConfig(t, `
serial:
  driver: bugst
  printer:
    enabled: true
    model: escpos
    port: /dev/ttyS3
  dispenser:
    enabled: true
    port: /dev/ttyS4
    auto_open: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bugst", cfg.Serial.Driver)
	assert.True(t, cfg.Serial.Printer.Enabled)
	assert.Equal(t, "escpos", cfg.Serial.Printer.Model)
	assert.Equal(t, "/dev/ttyS3", cfg.Serial.Printer.Port)
	assert.True(t, cfg.Serial.Dispenser.Enabled)
	assert.False(t, cfg.Serial.Dispenser.AutoOpen)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "serial:\n  driver: usb\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serial.driver")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("KIOSK_SERVER_PORT", "9191")
	path := writeConfig(t, "server:\n  port: 8000\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}
