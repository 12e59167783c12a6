package generator

import (
	"context"

	"github.com/shouni/gemini-image-kit/ports"
)

// TextModel はプロンプトからテキストを生成する言語モデルです。
type TextModel interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// PanelImager は1コマ分の画像を生成します。
type PanelImager interface {
	GenerateMangaPanel(ctx context.Context, req ports.ImagePanelRequest) (*ports.ImageResponse, error)
}
