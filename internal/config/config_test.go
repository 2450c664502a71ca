package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"LIVESESSION_CONFIG", "MONGO_URI", "MONGO_DB", "REDIS_URI", "PORT", "JWT_SECRET",
		"CORS_ALLOWED_ORIGINS", "JOIN_WINDOW", "PREVIEW_LIMIT", "LOCKOUT_AFTER", "LOCKOUT_FOR",
		"TRANSPORT_TIMEOUT", "CACHE_TTL", "MEDIA_PROVIDER_URL", "MEDIA_PROVIDER_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30*time.Minute, cfg.JoinWindow)
	assert.Equal(t, 600*time.Second, cfg.PreviewLimit)
	assert.Equal(t, 3, cfg.LockoutAfter)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "livesession.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mongo_db = "classes"
redis_addr = "cache:6380"
join_window = "15m"
preview_limit = "2m"
lockout_after = 5
`), 0o600))

	t.Setenv("LIVESESSION_CONFIG", path)
	t.Setenv("PREVIEW_LIMIT", "90s")
	t.Setenv("REDIS_URI", "redis://override:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "classes", cfg.MongoDB)
	assert.Equal(t, "override:6379", cfg.RedisAddr)
	assert.Equal(t, 15*time.Minute, cfg.JoinWindow)
	assert.Equal(t, 90*time.Second, cfg.PreviewLimit)
	assert.Equal(t, 5, cfg.LockoutAfter)
}

func TestLoad_BadFileDuration(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`join_window = "soon"`), 0o600))
	t.Setenv("LIVESESSION_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadEnvDurationKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOCKOUT_FOR", "forever")
	t.Setenv("LOCKOUT_AFTER", "-2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.LockoutFor)
	assert.Equal(t, 3, cfg.LockoutAfter)
}

func TestNormalizeRedisAddr(t *testing.T) {
	assert.Equal(t, "redis:6379", normalizeRedisAddr("redis://redis:6379"))
	assert.Equal(t, "localhost:6379", normalizeRedisAddr("localhost:6379"))
}
