package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	cleanup := func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("POSTGRES_ADDR")
		os.Unsetenv("POSTGRES_USER")
		os.Unsetenv("POSTGRES_PASSWORD")
		os.Unsetenv("POSTGRES_DB")
		os.Unsetenv("REDIS_HOST")
		os.Unsetenv("REDIS_PORT")
		os.Unsetenv("RL_REQUESTS_LIMIT")
		os.Unsetenv("OUTBOX_ENABLED")
		os.Unsetenv("ALLOCATOR_EMPTY_BACKOFF")
	}

	t.Run("should_return_error_if_database_config_is_missing", func(t *testing.T) {
		cleanup()
		cfg, err := Load()
		assert.Nil(t, cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "missing database config")
	})

	t.Run("should_load_successfully_with_database_url", func(t *testing.T) {
		cleanup()
		os.Setenv("DATABASE_URL", "postgres://localhost:5432/courseflow")
		defer cleanup()

		cfg, err := Load()
		assert.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, "postgres://localhost:5432/courseflow", cfg.DBDSN)
		assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
		assert.Equal(t, 500*time.Millisecond, cfg.AllocatorEmptyBackoff)
	})

	t.Run("should_build_dsn_from_postgres_parts", func(t *testing.T) {
		cleanup()
		os.Setenv("POSTGRES_ADDR", "db:5432")
		os.Setenv("POSTGRES_USER", "admission")
		os.Setenv("POSTGRES_PASSWORD", "secret")
		os.Setenv("POSTGRES_DB", "courseflow")
		defer cleanup()

		cfg, err := Load()
		assert.NoError(t, err)
		assert.Contains(t, cfg.DBDSN, "db:5432")
		assert.Contains(t, cfg.DBDSN, "courseflow")
	})

	t.Run("should_override_allocator_tuning_from_env", func(t *testing.T) {
		cleanup()
		os.Setenv("DATABASE_URL", "postgres://localhost:5432/courseflow")
		os.Setenv("ALLOCATOR_EMPTY_BACKOFF", "2s")
		defer cleanup()

		cfg, err := Load()
		assert.NoError(t, err)
		assert.Equal(t, 2*time.Second, cfg.AllocatorEmptyBackoff)
	})
}

func TestGetEnv(t *testing.T) {
	t.Run("should_trim_whitespace", func(t *testing.T) {
		os.Setenv("TEST_KEY", "  value  ")
		defer os.Unsetenv("TEST_KEY")
		assert.Equal(t, "value", getEnv("TEST_KEY", "default"))
	})

	t.Run("should_return_default_if_empty", func(t *testing.T) {
		os.Setenv("TEST_KEY", "")
		defer os.Unsetenv("TEST_KEY")
		assert.Equal(t, "fallback", getEnv("TEST_KEY", "fallback"))
	})
}

func TestGetDuration(t *testing.T) {
	t.Run("should_parse_valid_duration", func(t *testing.T) {
		os.Setenv("DUR_KEY", "5s")
		defer os.Unsetenv("DUR_KEY")
		assert.Equal(t, 5*time.Second, getDuration("DUR_KEY", 0))
	})

	t.Run("should_return_default_on_invalid_duration", func(t *testing.T) {
		os.Setenv("DUR_KEY", "not-a-duration")
		defer os.Unsetenv("DUR_KEY")
		assert.Equal(t, 10*time.Second, getDuration("DUR_KEY", 10*time.Second))
	})
}

func TestGetBool(t *testing.T) {
	t.Run("should_parse_common_truthy_values", func(t *testing.T) {
		os.Setenv("BOOL_KEY", "yes")
		defer os.Unsetenv("BOOL_KEY")
		assert.True(t, getBool("BOOL_KEY", false))
	})

	t.Run("should_return_default_when_unset", func(t *testing.T) {
		os.Unsetenv("BOOL_KEY")
		assert.True(t, getBool("BOOL_KEY", true))
	})
}
