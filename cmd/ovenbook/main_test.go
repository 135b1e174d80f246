package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ovenbook/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const memoryConfig = `
database:
  driver: memory
logging:
  level: error
  format: json
admins:
  - id: admin
    name: Admin
    email: admin@lab.test
`

func TestSweepCommandOnMemoryStore(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", writeConfig(t, memoryConfig), "--env-file", filepath.Join(t.TempDir(), "missing.env"), "sweep"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "completed 0 booking(s)\n", out.String())
}

func TestMaintenanceRequiresAdmin(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", writeConfig(t, memoryConfig), "--env-file", "", "maintenance", "set", "1", "--admin", "nobody"})
	assert.Error(t, cmd.Execute())
}

func TestExportNeedsSQLStore(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", writeConfig(t, memoryConfig), "--env-file", "", "export", "--out", t.TempDir()})
	assert.ErrorContains(t, cmd.Execute(), "export needs")
}

func TestNewLoggerJSON(t *testing.T) {
	cfg := &config.Config{}
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"

	var buf bytes.Buffer
	logger := newLogger(cfg, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Str("k", "v").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestRulesFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Booking.MaxActivePerUser = 3
	cfg.Booking.GraceWindowMinutes = 30

	rules := rulesFromConfig(cfg)
	assert.Equal(t, 3, rules.MaxActivePerUser)
	assert.Equal(t, 30*time.Minute, rules.GraceWindow)
	assert.Equal(t, 7*24*time.Hour, rules.MaxDuration)
}
