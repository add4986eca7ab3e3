package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "user-events", cfg.Kafka.Topic)
	assert.Equal(t, 10*time.Minute, cfg.JWT.ResetExpire)
	assert.Equal(t, 20, cfg.Timeline.DefaultPageSize)
	assert.Equal(t, 100, cfg.Timeline.MaxPageSize)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `database:
  driver: sqlite
  path: /tmp/microblog.db
timeline:
  default_page_size: 10
  max_page_size: 50
redis:
  count_ttl: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("MICROBLOG_SERVER_PORT", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/microblog.db", cfg.Database.DSN())
	assert.Equal(t, 30*time.Second, cfg.Redis.CountTTL)
	assert.Equal(t, 10, cfg.Timeline.DefaultPageSize)
	assert.Equal(t, 50, cfg.Timeline.MaxPageSize)
}

func TestLoadRejectsInconsistentPageSizes(t *testing.T) {
	tests := []struct {
		name, yaml string
	}{
		{"default above max", "timeline:\n  default_page_size: 500\n  max_page_size: 50\n"},
		{"zero max", "timeline:\n  max_page_size: 0\n"},
		{"negative default", "timeline:\n  default_page_size: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := Load(path)
			assert.ErrorContains(t, err, "page_size")
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	c := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
}
