package generator

import (
	"context"
	"fmt"

	"github.com/shouni/gemini-image-kit/ports"
	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"
)

const (
	// DefaultTextModel はナラティブ分割に使う Gemini モデルです。
	DefaultTextModel = "gemini-3-flash-preview"
	// DefaultImageModel はパネル画像の生成に使う Gemini モデルです。
	DefaultImageModel = "gemini-3-pro-image-preview"

	defaultGeminiTemperature = float32(0.2)
)

// newGeminiClient は Gemini API バックエンドのクライアントを初期化します。
func newGeminiClient(ctx context.Context, apiKey string, temperature *float32) (*gemini.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY は必須です")
	}
	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      apiKey,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return client, nil
}

// GeminiTextModel は go-gemini-client を TextModel として使うアダプターです。
type GeminiTextModel struct {
	client gemini.ContentGenerator
	model  string
}

var _ TextModel = (*GeminiTextModel)(nil)

// NewGeminiTextModel は gemini クライアントを初期化します。
func NewGeminiTextModel(ctx context.Context, apiKey, model string) (*GeminiTextModel, error) {
	client, err := newGeminiClient(ctx, apiKey, genai.Ptr(defaultGeminiTemperature))
	if err != nil {
		return nil, err
	}
	return newGeminiTextModel(client, model), nil
}

func newGeminiTextModel(client gemini.ContentGenerator, model string) *GeminiTextModel {
	if model == "" {
		model = DefaultTextModel
	}
	return &GeminiTextModel{client: client, model: model}
}

// GenerateText はプロンプトを送り、応答本文を返します。
func (m *GeminiTextModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.GenerateContent(ctx, m.model, prompt)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// GeminiImager は画像出力モデルで1コマずつ描画します。
type GeminiImager struct {
	client gemini.Generator
	model  string
}

var _ PanelImager = (*GeminiImager)(nil)

// NewGeminiImager は画像生成用の gemini クライアントを初期化します。
func NewGeminiImager(ctx context.Context, apiKey, model string) (*GeminiImager, error) {
	client, err := newGeminiClient(ctx, apiKey, nil)
	if err != nil {
		return nil, err
	}
	return newGeminiImager(client, model), nil
}

func newGeminiImager(client gemini.Generator, model string) *GeminiImager {
	if model == "" {
		model = DefaultImageModel
	}
	return &GeminiImager{client: client, model: model}
}

// GenerateMangaPanel はリクエストを GenerateWithParts に変換し、最初の画像を返します。
func (g *GeminiImager) GenerateMangaPanel(ctx context.Context, req ports.ImagePanelRequest) (*ports.ImageResponse, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	resp, err := g.client.GenerateWithParts(ctx, model, panelParts(req), panelOptions(req))
	if err != nil {
		return nil, err
	}
	data, mimeType, ok := firstImage(resp)
	if !ok {
		return nil, fmt.Errorf("モデル %s の応答に画像が含まれていません", model)
	}
	return &ports.ImageResponse{
		Data:     data,
		MimeType: mimeType,
		UsedSeed: ports.DereferenceSeed(req.Seed),
	}, nil
}

// panelParts はネガティブプロンプトを本文の末尾に付けたテキストパートを作ります。
func panelParts(req ports.ImagePanelRequest) []*genai.Part {
	prompt := req.Prompt
	if req.NegativePrompt != "" {
		prompt += "\n\nAvoid: " + req.NegativePrompt
	}
	return []*genai.Part{{Text: prompt}}
}

// panelOptions はシステムプロンプト、アスペクト比、シードを生成オプションに写します。
func panelOptions(req ports.ImagePanelRequest) gemini.GenerateOptions {
	return gemini.GenerateOptions{
		SystemPrompt: req.SystemPrompt,
		AspectRatio:  req.AspectRatio,
		ImageSize:    req.ImageSize,
		Seed:         req.Seed,
	}
}

func firstImage(resp *gemini.Response) ([]byte, string, bool) {
	if resp == nil {
		return nil, "", false
	}
	if raw := resp.RawResponse; raw != nil {
		for _, cand := range raw.Candidates {
			if cand == nil || cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
					return part.InlineData.Data, part.InlineData.MIMEType, true
				}
			}
		}
	}
	for _, img := range resp.Images {
		if len(img) > 0 {
			return img, "", true
		}
	}
	return nil, "", false
}
