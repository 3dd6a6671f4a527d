package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvDur_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("M365_TEST_DUR", "thirty")
	assert.Equal(t, 45*time.Nanosecond, envDur("M365_TEST_DUR", 45))

	t.Setenv("M365_TEST_DUR", "30")
	assert.Equal(t, 30*time.Nanosecond, envDur("M365_TEST_DUR", 45))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("M365_HTTP_TIMEOUT_SEC", "soon")
	t.Setenv("M365_CACHE", "redis")
	t.Setenv("REDIS_URL", "")
	t.Setenv("M365_SCOPE_POLICY", "")
	t.Setenv("M365_BRANCH", "")

	cfg := Load()
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout, "unparsable timeout keeps the default")
	assert.Equal(t, "lru", cfg.CacheBackend, "redis without REDIS_URL falls back")
	assert.Equal(t, "exact", cfg.ScopePolicy)
	assert.Equal(t, "default", cfg.Channel())
}
