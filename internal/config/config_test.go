package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "croprot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("db", "", "")
	fs.String("redis", "", "")
	fs.String("addr", "", "")
	fs.String("log-level", "", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "croprot.db", cfg.Database)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "croprot:field:", cfg.Redis.Prefix)
	assert.False(t, cfg.UseRedis())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database: farm.db
redis:
  addr: localhost:6379
  db: 2
http:
  addr: 127.0.0.1:9090
log:
  level: debug
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "farm.db", cfg.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "croprot:field:", cfg.Redis.Prefix, "unset keys keep defaults")
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.Addr)
	assert.True(t, cfg.UseRedis())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "database: farm.db\n")
	t.Setenv("CROPROT_DATABASE", "env.db")
	t.Setenv("CROPROT_REDIS_ADDR", "redis:6379")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	path := writeConfig(t, "database: farm.db\n")
	t.Setenv("CROPROT_DATABASE", "env.db")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--db", "flag.db"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "flag.db", cfg.Database)
	assert.Equal(t, ":8080", cfg.HTTP.Addr, "unset flags must not clobber defaults")
}

func TestLoad_UnsetFlagsIgnored(t *testing.T) {
	path := writeConfig(t, "database: farm.db\n")

	cfg, err := Load(path, testFlags())
	require.NoError(t, err)
	assert.Equal(t, "farm.db", cfg.Database)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file failed")
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, "databse: typo.db\n")

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "databse")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
log:
  level: loud
redis:
  db: -1
`)
	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "redis.db")
}
