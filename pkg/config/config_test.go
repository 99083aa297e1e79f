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

	assert.Equal(t, "memory", cfg.Quota.Backend)
	assert.Equal(t, 1, cfg.Quota.AnonymousLimit)
	assert.Equal(t, 3, cfg.Quota.FreeLimit)
	assert.False(t, cfg.Quota.FailOpen)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 50, cfg.Search.MaxLimit)
	assert.Equal(t, "corpus-reload", cfg.Kafka.Topics.CorpusReload)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
quota:
  backend: redis
  anonymousLimit: 2
  keyTTL: 24h
search:
  defaultLimit: 5
  maxLimit: 20
  hierarchyPolicy: prefer-ancestor
  fuzzyThreshold: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CC_QUOTA_FREE_LIMIT", "7")
	t.Setenv("CC_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Quota.Backend)
	assert.Equal(t, 2, cfg.Quota.AnonymousLimit)
	assert.Equal(t, 7, cfg.Quota.FreeLimit)
	assert.Equal(t, 24*time.Hour, cfg.Quota.KeyTTL)
	assert.Equal(t, "prefer-ancestor", cfg.Search.HierarchyPolicy)
	assert.Equal(t, 0.9, cfg.Search.FuzzyThreshold)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CC_QUOTA_BACKEND", "etcd")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadRejectsFuzzyThresholdAboveOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  fuzzyThreshold: 80\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", p.DSN())
}
