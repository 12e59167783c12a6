package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shouni/go-manga-studio/pkg/generator"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"MANGA_BACKEND_URL", "MANGA_TIER", "MANGA_HTTP_TIMEOUT", "MANGA_RATE_INTERVAL", "GEMINI_MODEL"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, DefaultTier, cfg.Tier)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTPTimeout)
	assert.Equal(t, DefaultRateInterval, cfg.RateInterval)
	assert.Equal(t, generator.DefaultTextModel, cfg.GeminiModel)
	assert.False(t, cfg.Remote())
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("MANGA_BACKEND_URL", "http://studio.local:8080/")
	t.Setenv("MANGA_TIER", "PRO")
	t.Setenv("MANGA_HTTP_TIMEOUT", "45s")
	t.Setenv("MANGA_RATE_INTERVAL", "later")

	cfg := LoadConfig()

	assert.Equal(t, "PRO", cfg.Tier)
	assert.Equal(t, 45*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, DefaultRateInterval, cfg.RateInterval, "読めない値はデフォルトに戻るのだ")
	assert.True(t, cfg.Remote())
}

func TestConfig_AssetURL(t *testing.T) {
	cfg := &Config{BackendURL: "http://studio.local:8080/"}
	assert.Equal(t, "http://studio.local:8080/v1/assets/abc", cfg.AssetURL("/v1/assets/abc"))
	assert.Equal(t, "/api/placeholder/240/240?panel=0", cfg.AssetURL("/api/placeholder/240/240?panel=0"))

	local := &Config{}
	assert.Equal(t, "/v1/assets/abc", local.AssetURL("/v1/assets/abc"))
}
