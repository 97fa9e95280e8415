package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/studykit/pkg/config"
)

type quotaTestConfig struct {
	Strict   bool          `env:"CFGTEST_QUOTA_STRICT" envDefault:"false"`
	Timezone string        `env:"CFGTEST_TIMEZONE" envDefault:"UTC"`
	Timeout  time.Duration `env:"CFGTEST_TIMEOUT" envDefault:"30s"`
}

type cachedTestConfig struct {
	Value string `env:"CFGTEST_CACHED" envDefault:"first"`
}

type requiredTestConfig struct {
	Secret string `env:"CFGTEST_REQUIRED_SECRET,required"`
}

func TestLoad(t *testing.T) {
	t.Run("parses values and defaults", func(t *testing.T) {
		t.Setenv("CFGTEST_QUOTA_STRICT", "true")
		t.Setenv("CFGTEST_TIMEZONE", "Europe/Berlin")

		var cfg quotaTestConfig
		require.NoError(t, config.Load(&cfg))

		assert.True(t, cfg.Strict)
		assert.Equal(t, "Europe/Berlin", cfg.Timezone)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
	})

	t.Run("caches by type", func(t *testing.T) {
		var first cachedTestConfig
		require.NoError(t, config.Load(&first))
		assert.Equal(t, "first", first.Value)

		t.Setenv("CFGTEST_CACHED", "second")

		var second cachedTestConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, "first", second.Value)
	})

	t.Run("missing required value", func(t *testing.T) {
		var cfg requiredTestConfig
		err := config.Load(&cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		var cfg *quotaTestConfig
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})
}

func TestMustLoadPanicsOnError(t *testing.T) {
	assert.Panics(t, func() {
		var cfg requiredTestConfig
		config.MustLoad(&cfg)
	})
}
