package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anchor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "hostname: node1.example.com\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node1.example.com", cfg.Hostname)
	assert.Equal(t, "/var/lib/anchor", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ConvergeSleep.Std())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
hostname: node2.example.com
data_dir: /tmp/anchor
pool_dir: /tmp/anchor/volumes
controller_address: controller.example.com:4524
log_level: debug
converge_sleep: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node2.example.com", cfg.Hostname)
	assert.Equal(t, "/tmp/anchor", cfg.DataDir)
	assert.Equal(t, "/tmp/anchor/volumes", cfg.PoolDir)
	assert.Equal(t, "controller.example.com:4524", cfg.ControllerAddress)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.ConvergeSleep.Std())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad log level", "log_level: verbose\n"},
		{"bad sleep", "converge_sleep: -1s\n"},
		{"empty data dir", "data_dir: \"\"\n"},
		{"not yaml", "{{{\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
