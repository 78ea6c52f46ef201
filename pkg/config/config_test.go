package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("store:\n  driver: memory\nbus:\n  driver: memory\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "http", cfg.Fetcher.Mode)
	assert.Equal(t, "GET", cfg.Fetcher.Snapshot.Method)
	assert.Equal(t, 300*time.Second, cfg.Scheduler.HardTimeout)
	assert.Equal(t, 240*time.Second, cfg.Scheduler.SoftTimeout)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Scheduler.RetryBase)
	assert.Equal(t, 7, cfg.Scheduler.DaysAhead)
	assert.Equal(t, "*/30 * * * * *", cfg.Scheduler.LiveScores.Spec)
	assert.Equal(t, "*/10 * * * * *", cfg.Scheduler.MatchEvents.Spec)
	assert.Equal(t, "CRON_TZ=UTC 0 0 2 * * *", cfg.Scheduler.Fixtures.Spec)
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("LIVESCORE_MONGO_HOST", "mongo.internal:27017")
	t.Setenv("LIVESCORE_REDIS_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(`
mongo:
  host: ${LIVESCORE_MONGO_HOST}
  dbname: scores
redis:
  addr: redis:6379
  password: ${LIVESCORE_REDIS_PASSWORD}
fetcher:
  timeout: 3s
  snapshot:
    method: POST/JSON
    url: https://feed.example.com/match/{id}
scheduler:
  fixtures:
    disabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, "mongo.internal:27017", cfg.Mongo.Host)
	assert.Equal(t, "scores", cfg.Mongo.DBName)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, 3*time.Second, cfg.Fetcher.Timeout)
	assert.Equal(t, "POST/JSON", cfg.Fetcher.Snapshot.Method)
	assert.True(t, cfg.Scheduler.Fixtures.Disabled)
	assert.False(t, cfg.Scheduler.LiveScores.Disabled)
}

func TestParse_KeepsBareDollar(t *testing.T) {
	t.Setenv("LIVESCORE_TOKEN", "abc")
	t.Setenv("x", "wiped")

	cfg, err := Parse([]byte(`
store:
  driver: memory
fetcher:
  mode: browser
  snapshot:
    url: https://feed.example.com/match/{id}?price=$5
    headers:
      Authorization: Bearer ${LIVESCORE_TOKEN}
  browser:
    expression: JSON.stringify($("#data").data() || $x)
`))
	require.NoError(t, err)

	assert.Equal(t, `JSON.stringify($("#data").data() || $x)`, cfg.Fetcher.Browser.Expression)
	assert.Equal(t, "https://feed.example.com/match/{id}?price=$5", cfg.Fetcher.Snapshot.URL)
	assert.Equal(t, "Bearer abc", cfg.Fetcher.Snapshot.Headers["Authorization"])
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"mongo without host", "store:\n  driver: mongo\n"},
		{"unknown store", "store:\n  driver: sqlite\n"},
		{"unknown bus", "store:\n  driver: memory\nbus:\n  driver: kafka\n"},
		{"unknown fetcher", "store:\n  driver: memory\nfetcher:\n  mode: ftp\n"},
		{"soft above hard", "store:\n  driver: memory\nscheduler:\n  hard_timeout: 10s\n  soft_timeout: 20s\n"},
		{"bad yaml", "store: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "livescore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\nserver:\n  addr: \":9090\"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
