// Package asset は生成したパネル画像をディレクトリに書き出します。
package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shouni/go-utils/urlpath"

	"github.com/shouni/go-manga-studio/pkg/domain"
)

const (
	// DefaultPanelFileName はパネル画像の共通のベースファイル名です。
	DefaultPanelFileName = "panel.png"
)

// PanelFileRegex はパネル画像 (panel_1.png, panel_2.webp 等) に一致します
var PanelFileRegex = regexp.MustCompile(`^panel_\d+\.(png|jpg|webp|gif)$`)

// Source は参照から画像を取得します。
type Source interface {
	Asset(id string) (data []byte, mimeType string, ok bool)
}

// Exporter はパネル画像を dir に書き出します。
type Exporter struct {
	dir string
}

// NewExporter は dir に書き出す Exporter を生成します。
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// Export は src から引けるパネルの画像を panel_<ID+1>.<ext> として保存し、参照を保存先のパスに置き換えます。
// src に無い参照 (プレースホルダー等) はそのまま残します。
func (e *Exporter) Export(panels domain.Panels, src Source) error {
	if src == nil || e.dir == "" {
		return nil
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}

	for i, p := range panels {
		data, mimeType, ok := src.Asset(p.ImageRef)
		if !ok {
			continue
		}
		path, err := PanelPath(e.dir, p.ID, mimeType)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("パネル %d の画像の保存に失敗しました: %w", p.ID, err)
		}
		panels[i].ImageRef = path
	}
	return nil
}

// PanelPath は、パネル ID と画像形式から保存先のパスを生成します。
// 連番は1始まりです。例: ("out", 0, "image/png") -> "out/panel_1.png"
func PanelPath(dir string, panelID int, mimeType string) (string, error) {
	base := strings.TrimSuffix(DefaultPanelFileName, filepath.Ext(DefaultPanelFileName)) + extension(mimeType)
	basePath, err := urlpath.ResolvePath(dir, base)
	if err != nil {
		return "", fmt.Errorf("出力パスの解決に失敗しました: %w", err)
	}
	return urlpath.GenerateIndexedPath(basePath, panelID+1)
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
