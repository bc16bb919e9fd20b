package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	defaults := Config
	defer func() { Config = defaults }()

	dir := t.TempDir()
	path := filepath.Join(dir, "discuss.yaml")
	err := os.WriteFile(path, []byte(`
env: beta
cache:
  max_topics: 17
locks:
  acquire_timeout: 750ms
postgres:
  dbname: discuss_beta
`), 0644)
	require.Nil(t, err)

	t.Setenv("DISCUSS_POSTGRES__HOSTNAME", "db.internal")
	t.Setenv("DISCUSS_LOG_LEVEL", "debug")

	require.Nil(t, Load(path))

	assert.Equal(t, Beta, Config.Env)
	assert.Equal(t, 17, Config.Cache.MaxTopics)
	assert.Equal(t, 750*time.Millisecond, Config.Locks.AcquireTimeout)
	assert.Equal(t, "discuss_beta", Config.Postgres.DbName)
	assert.Equal(t, "db.internal", Config.Postgres.Hostname)
	assert.Equal(t, "debug", Config.LogLevel)

	t.Run("untouched keys keep their defaults", func(t *testing.T) {
		assert.Equal(t, defaults.Postgres.Port, Config.Postgres.Port)
		assert.Equal(t, defaults.NATS.Subject, Config.NATS.Subject)
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "postgres.log_level", envKey("DISCUSS_POSTGRES__LOG_LEVEL"))
	assert.Equal(t, "addr", envKey("DISCUSS_ADDR"))
}
