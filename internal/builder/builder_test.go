package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shouni/go-http-kit/httpkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-manga-studio/internal/config"
	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/remote"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewAppContext(t *testing.T) {
	t.Run("既定ではローカルのカタログなのだ", func(t *testing.T) {
		appCtx, err := NewAppContext(&config.Config{})
		require.NoError(t, err)
		assert.Len(t, appCtx.Catalog, 4)
		assert.Nil(t, appCtx.Characters)
	})

	t.Run("ファイルから読み込むのだ", func(t *testing.T) {
		catalog := writeFile(t, "catalog.yaml", `
models:
  - id: ink-v1
    display_name: Ink
    min_tier: FREE
`)
		chars := writeFile(t, "characters.json", `{"hero":{"id":"hero","name":"Hero","visual_cues":["red scarf"]}}`)

		appCtx, err := NewAppContext(&config.Config{CatalogFile: catalog, CharactersFile: chars})
		require.NoError(t, err)
		assert.Equal(t, []string{"ink-v1"}, appCtx.Catalog.IDs())
		assert.Equal(t, "Hero", appCtx.Characters["hero"].Name)
	})

	t.Run("読めないファイルはエラーなのだ", func(t *testing.T) {
		_, err := NewAppContext(&config.Config{CatalogFile: filepath.Join(t.TempDir(), "missing.yaml")})
		require.Error(t, err)

		_, err = NewAppContext(nil)
		require.Error(t, err)
	})
}

func TestBuildBackend(t *testing.T) {
	ctx := context.Background()
	appCtx, err := NewAppContext(&config.Config{})
	require.NoError(t, err)

	b, err := BuildBackend(ctx, appCtx, config.BackendPlaceholder)
	require.NoError(t, err)
	assert.IsType(t, &remote.Placeholder{}, b.Service)
	assert.Nil(t, b.Assets)

	_, err = BuildBackend(ctx, appCtx, "dall-e")
	require.Error(t, err)

	_, err = BuildBackend(ctx, appCtx, config.BackendGemini)
	require.Error(t, err, "API キーなしでは Gemini を使えないのだ")

	remoteCtx, err := NewAppContext(&config.Config{BackendURL: "http://studio.local:8080", HTTPTimeout: config.DefaultHTTPTimeout, RateInterval: config.DefaultRateInterval})
	require.NoError(t, err)
	b, err = BuildBackend(ctx, remoteCtx, config.BackendGemini)
	require.NoError(t, err, "リモート設定があればバックエンドの種類は使わないのだ")
	assert.IsType(t, &remote.CachedCatalog{}, b.Service)
}

func TestInitializeHTTPClient(t *testing.T) {
	d := InitializeHTTPClient(5 * time.Second)
	assert.IsType(t, &httpkit.Client{}, d, "トランスポートは go-http-kit なのだ")
}

func TestBuildCoordinator_Placeholder(t *testing.T) {
	ctx := context.Background()
	appCtx, err := NewAppContext(&config.Config{})
	require.NoError(t, err)
	b, err := BuildBackend(ctx, appCtx, config.BackendPlaceholder)
	require.NoError(t, err)

	coord, err := BuildCoordinator(ctx, appCtx, b.Service, domain.TierBasic)
	require.NoError(t, err)

	def, ok := coord.DefaultModel()
	require.True(t, ok)
	assert.Equal(t, "anime-v1", def.ID)

	panels, err := coord.Submit(ctx, domain.GenerationRequest{Narrative: "A hero's journey begins", PanelCount: 2, ModelID: "anime-v2"})
	require.NoError(t, err)
	assert.Len(t, panels, 2)
}
