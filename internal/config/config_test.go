package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Database: "vehicle.dbc"}
	cfg.ApplyDefaults()

	assert.Equal(t, "-", cfg.Input)
	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 4, cfg.QueueDepth)
	assert.Equal(t, "127.0.0.1", cfg.Influx.Host)
	assert.Equal(t, 8086, cfg.Influx.Port)

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := &Config{Database: "vehicle.dbc", Mode: "dump"}
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresDatabase(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())
}

func TestFrameIDSetParsesHexAndDecimal(t *testing.T) {
	cfg := &Config{FrameIDs: []string{"0x1F0", "513"}}
	ids, err := cfg.FrameIDSet()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x1F0, 513}, ids)

	cfg = &Config{FrameIDs: []string{"not-an-id"}}
	_, err = cfg.FrameIDSet()
	assert.Error(t, err)

	cfg = &Config{}
	ids, err = cfg.FrameIDSet()
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestMask(t *testing.T) {
	cfg := &Config{}
	mask, err := cfg.Mask()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), mask)

	cfg.FrameIDMask = "0x7F0"
	mask, err = cfg.Mask()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7F0), mask)

	cfg.FrameIDMask = "bogus"
	_, err = cfg.Mask()
	assert.Error(t, err)
}

func TestPublishEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.PublishEnabled())
	cfg.Influx.Database = "canbus"
	assert.True(t, cfg.PublishEnabled())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
database: vehicle.dbc
mode: log
quiet: true
frame_ids: ["0x1F0"]
batch_size: 50
influxdb:
  database: canbus
  host: influx.local
  port: 9999
  tls: true
metrics:
  addr: ":9100"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "vehicle.dbc", cfg.Database)
	assert.Equal(t, "log", cfg.Mode)
	assert.True(t, cfg.Quiet)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, "canbus", cfg.Influx.Database)
	assert.Equal(t, "influx.local", cfg.Influx.Host)
	assert.Equal(t, 9999, cfg.Influx.Port)
	assert.True(t, cfg.Influx.TLS)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	// Defaults still fill the gaps.
	assert.Equal(t, "-", cfg.Input)
	assert.Equal(t, 4, cfg.QueueDepth)
}

func TestLoadFileSkipsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: log\n"), 0o644))

	// No database yet; the CLI supplies it as a positional argument later.
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "log", cfg.Mode)
	assert.Empty(t, cfg.Database)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
