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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "legislation.nysenate.gov", cfg.OpenLeg.Host)
	assert.Equal(t, "3", cfg.OpenLeg.Version)
	assert.Equal(t, []string{"api"}, cfg.OpenLeg.PathPrefix)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 100, cfg.Scheduler.PageSize)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
openleg:
  host: openleg.example.org
  apiKey: file-key
  timeout: 5s
store:
  driver: sqlite
sqlite:
  path: /tmp/openleg.db
scheduler:
  pageSize: 25
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("OL_OPENLEG_API_KEY", "env-key")
	t.Setenv("OL_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openleg.example.org", cfg.OpenLeg.Host)
	assert.Equal(t, "env-key", cfg.OpenLeg.APIKey)
	assert.Equal(t, 5*time.Second, cfg.OpenLeg.Timeout)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 25, cfg.Scheduler.PageSize)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Driver = "mongo"
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
