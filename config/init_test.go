package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.HTTPPort)
	assert.Equal(t, "", cfg.Database.Driver)
	assert.Equal(t, 8*time.Hour, cfg.Session.Duration)
	assert.Equal(t, time.Duration(0), cfg.Session.SweepInterval)
	assert.Equal(t, 5*time.Second, cfg.Locks.Timeout)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "toolcrib.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  http_port: "9090"
database:
  driver: sqlite
  dsn: toolcrib.db
session:
  duration: 30m
`), 0o600))
	t.Setenv("CONFIG_FILE", file)
	t.Setenv("LOCKS_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Session.Duration)
	assert.Equal(t, 750*time.Millisecond, cfg.Locks.Timeout)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.Server.Address = "0.0.0.0"
		c.Server.HTTPPort = "8080"
		c.Session.Duration = time.Hour
		c.Locks.Timeout = time.Second
		return c
	}
	require.NoError(t, validate(base()))

	c := base()
	c.Database.Driver = "oracle"
	assert.Error(t, validate(c))

	c = base()
	c.Database.Driver = "postgres"
	assert.Error(t, validate(c), "dsn is required for a real driver")

	c = base()
	c.Session.Duration = 0
	assert.Error(t, validate(c))

	c = base()
	c.Locks.Timeout = 0
	assert.Error(t, validate(c))
}
