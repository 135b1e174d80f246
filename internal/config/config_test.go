package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OVENBOOK_TEST_KEY", "secret-key")
	path := writeFile(t, dir, "config.yaml", `
http:
  api_key: ${OVENBOOK_TEST_KEY}
database:
  path: `+filepath.Join(dir, "data", "ovens.db")+`
booking:
  grace_window_minutes: 30
admins:
  - id: root
    name: Root
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.HTTP.APIKey)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.GraceWindow())
	assert.Equal(t, 7*24*time.Hour, cfg.MaxDuration())
	assert.Equal(t, time.Duration(0), cfg.SweepInterval())
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(writeFile(t, dir, "pg.yaml", "database:\n  driver: postgres\n"))
	assert.ErrorContains(t, err, "dsn")

	_, err = Load(writeFile(t, dir, "bad.yaml", "database:\n  driver: oracle\n"))
	assert.ErrorContains(t, err, "unsupported driver")

	_, err = Load(writeFile(t, dir, "admin.yaml", "database:\n  driver: memory\nadmins:\n  - name: nobody\n"))
	assert.ErrorContains(t, err, "admins[0]")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	t.Setenv("OVENBOOK_CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, ResolvePath(""))
	t.Setenv("OVENBOOK_CONFIG_PATH", "/etc/ovenbook.yaml")
	assert.Equal(t, "/etc/ovenbook.yaml", ResolvePath(""))
	assert.Equal(t, "x.yaml", ResolvePath("x.yaml"))
}

const ovensYAML = `
ovens:
  - id: 1
    name: Oven A
    type: NON_AQUEOUS
    max_temp: 250
  - id: 2
    name: Oven B
    type: AQUEOUS
    max_temp: 120
`

func TestLoadOvensConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ovens.yaml", ovensYAML)
	cfg, err := LoadOvensConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Ovens, 2)
	assert.Equal(t, 120, cfg.GetOvenByID(2).MaxTemp)
	assert.Nil(t, cfg.GetOvenByID(3))
	assert.Equal(t, "OvensConfig: 2 ovens", cfg.String())
}

func TestOvensConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  OvensConfig
		want string
	}{
		{"empty", OvensConfig{}, "no ovens"},
		{"bad id", OvensConfig{Ovens: []OvenConfig{{ID: 0, Name: "A", Type: "AQUEOUS", MaxTemp: 1}}}, "id must be positive"},
		{"dup id", OvensConfig{Ovens: []OvenConfig{
			{ID: 1, Name: "A", Type: "AQUEOUS", MaxTemp: 1},
			{ID: 1, Name: "B", Type: "AQUEOUS", MaxTemp: 1},
		}}, "duplicate id"},
		{"dup name", OvensConfig{Ovens: []OvenConfig{
			{ID: 1, Name: "A", Type: "AQUEOUS", MaxTemp: 1},
			{ID: 2, Name: "a", Type: "AQUEOUS", MaxTemp: 1},
		}}, "duplicate name"},
		{"bad type", OvensConfig{Ovens: []OvenConfig{{ID: 1, Name: "A", Type: "GAS", MaxTemp: 1}}}, "invalid type"},
		{"bad temp", OvensConfig{Ovens: []OvenConfig{{ID: 1, Name: "A", Type: "AQUEOUS"}}}, "max_temp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, tt.cfg.Validate(), tt.want)
		})
	}
}

const ovenC = `  - id: 3
    name: Oven C
    type: AQUEOUS
    max_temp: 90
`

func touch(t *testing.T, path string, body string, ahead time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	future := time.Now().Add(ahead)
	require.NoError(t, os.Chtimes(path, future, future))
}

func TestOvensWatcherReloadsOnChange(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ovens.yaml", ovensYAML)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var syncs atomic.Int32
	var lastCount atomic.Int32
	w := NewOvensWatcher(path, 10*time.Millisecond, func(_ context.Context, cfg *OvensConfig) error {
		syncs.Add(1)
		lastCount.Store(int32(len(cfg.Ovens)))
		return nil
	}, zerolog.Nop())
	require.NoError(t, w.Start(ctx))
	assert.Equal(t, int32(1), syncs.Load())

	touch(t, path, ovensYAML+ovenC, time.Minute)

	assert.Eventually(t, func() bool { return lastCount.Load() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, w.Applied().Ovens, 3)
}

func TestOvensWatcherSkipsUnchangedContent(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ovens.yaml", ovensYAML)
	var syncs int
	w := NewOvensWatcher(path, time.Hour, func(context.Context, *OvensConfig) error {
		syncs++
		return nil
	}, zerolog.Nop())

	changed, err := w.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	touch(t, path, ovensYAML, time.Minute)
	changed, err = w.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, syncs)
}

func TestOvensWatcherRetriesFailedSync(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ovens.yaml", ovensYAML)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	w := NewOvensWatcher(path, 10*time.Millisecond, func(_ context.Context, cfg *OvensConfig) error {
		if len(cfg.Ovens) == 3 && attempts.Add(1) == 1 {
			return errors.New("database is locked")
		}
		return nil
	}, zerolog.Nop())
	require.NoError(t, w.Start(ctx))

	touch(t, path, ovensYAML+ovenC, time.Minute)

	assert.Eventually(t, func() bool {
		applied := w.Applied()
		return applied != nil && len(applied.Ovens) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, attempts.Load(), int32(2))
}

func TestOvensWatcherKeepsLastGoodConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ovens.yaml", ovensYAML)
	w := NewOvensWatcher(path, time.Hour, nil, zerolog.Nop())
	_, err := w.Reload(context.Background())
	require.NoError(t, err)

	touch(t, path, "ovens: []\n", time.Minute)
	_, err = w.Reload(context.Background())
	assert.Error(t, err)
	assert.Len(t, w.Applied().Ovens, 2)
}

func TestOvensWatcherStartFailsOnMissingFile(t *testing.T) {
	w := NewOvensWatcher(filepath.Join(t.TempDir(), "missing.yaml"), time.Hour, nil, zerolog.Nop())
	assert.Error(t, w.Start(context.Background()))
}
