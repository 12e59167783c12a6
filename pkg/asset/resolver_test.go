package asset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-manga-studio/pkg/domain"
)

type mapSource map[string]string

func (m mapSource) Asset(id string) ([]byte, string, bool) {
	data, ok := m[id]
	if !ok {
		return nil, "", false
	}
	return []byte(data), "image/webp", true
}

func TestPanelPath(t *testing.T) {
	path, err := PanelPath("out", 0, "image/png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "panel_1.png"), path)

	path, err = PanelPath("out", 3, "image/jpeg")
	require.NoError(t, err)
	assert.True(t, PanelFileRegex.MatchString(filepath.Base(path)), path)
	assert.Equal(t, "panel_4.jpg", filepath.Base(path))
}

func TestExporter_Export(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	panels := domain.Panels{
		{ID: 0, ImageRef: "/v1/assets/a"},
		{ID: 1, ImageRef: "/api/placeholder/240/240?panel=1"},
	}

	err := NewExporter(dir).Export(panels, mapSource{"/v1/assets/a": "webp-bytes"})
	require.NoError(t, err)

	assert.Equal(t, "panel_1.webp", filepath.Base(panels[0].ImageRef))
	data, err := os.ReadFile(panels[0].ImageRef)
	require.NoError(t, err)
	assert.Equal(t, "webp-bytes", string(data))
	assert.Equal(t, "/api/placeholder/240/240?panel=1", panels[1].ImageRef, "引けない参照はそのままなのだ")
}

func TestExporter_Noop(t *testing.T) {
	panels := domain.Panels{{ID: 0, ImageRef: "/v1/assets/a"}}
	require.NoError(t, NewExporter("").Export(panels, mapSource{}))
	require.NoError(t, NewExporter(t.TempDir()).Export(panels, nil))
	assert.Equal(t, "/v1/assets/a", panels[0].ImageRef)
}
