// Package generator は Gemini の言語モデルと画像モデルで生成バックエンドを実装します。
package generator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/prompts"
	"github.com/shouni/go-manga-studio/pkg/remote"
	"github.com/shouni/go-manga-studio/pkg/tier"
)

// ComposerArgs は MangaComposer の依存関係です。
type ComposerArgs struct {
	TextModel      TextModel
	ImageGenerator PanelImager
	Catalog        tier.Catalog
	CharactersMap  domain.CharactersMap
	StyleSuffix    string
	RateLimiter    *rate.Limiter
	Assets         *AssetStore
	Logger         *slog.Logger
}

// MangaComposer はナラティブの分割とパネル画像の並列生成を行う remote.Service です。
type MangaComposer struct {
	splitter       *NarrativeSplitter
	imageGenerator PanelImager
	promptBuilder  prompts.ImagePrompt
	catalog        tier.Catalog
	rateLimiter    *rate.Limiter
	assets         *AssetStore
	logger         *slog.Logger
}

var _ remote.Service = (*MangaComposer)(nil)

// NewMangaComposer は MangaComposer の新しいインスタンスを初期化済みの状態で生成します。
func NewMangaComposer(args ComposerArgs) (*MangaComposer, error) {
	if args.ImageGenerator == nil {
		return nil, fmt.Errorf("ImageGenerator は必須です")
	}
	if args.Catalog == nil {
		args.Catalog = tier.DefaultCatalog()
	}
	if args.RateLimiter == nil {
		args.RateLimiter = rate.NewLimiter(rate.Every(DefaultRateInterval), 1)
	}
	if args.Assets == nil {
		args.Assets = NewAssetStore(DefaultAssetTTL)
	}
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	pb := prompts.NewImagePromptBuilder(args.CharactersMap, args.StyleSuffix)
	splitter, err := NewNarrativeSplitter(args.TextModel, nil, pb.Characters())
	if err != nil {
		return nil, fmt.Errorf("ナラティブ分割の初期化に失敗しました: %w", err)
	}

	return &MangaComposer{
		splitter:       splitter,
		imageGenerator: args.ImageGenerator,
		promptBuilder:  pb,
		catalog:        args.Catalog,
		rateLimiter:    args.RateLimiter,
		assets:         args.Assets,
		logger:         args.Logger,
	}, nil
}

// Assets は生成画像の保存先です。HTTP ハンドラーから配信に使います。
func (mc *MangaComposer) Assets() *AssetStore {
	return mc.assets
}

// ListModels はカタログのうちティアで利用できるモデルを返します。
func (mc *MangaComposer) ListModels(_ context.Context, t domain.Tier) ([]domain.ModelDescriptor, error) {
	return tier.AllowedModels(t, mc.catalog), nil
}

// Generate はナラティブをパネルに分割し、全パネルの画像を並列で生成します。
func (mc *MangaComposer) Generate(ctx context.Context, call remote.GenerateCall) ([]domain.Panel, error) {
	model, ok := mc.catalog.Lookup(call.Request.ModelID)
	if !ok {
		return nil, fmt.Errorf("モデル %q はカタログにありません", call.Request.ModelID)
	}

	logger := mc.logger.With("session_id", call.SessionID, "round", call.Round, "model", model.ID)
	logger.InfoContext(ctx, "ページ生成を開始します", "panel_count", call.Request.PanelCount)

	scripts, err := mc.splitter.Split(ctx, call.Request.Narrative, call.Request.PanelCount)
	if err != nil {
		return nil, err
	}

	specs := make([]prompts.PanelSpec, len(scripts))
	for i, s := range scripts {
		specs[i] = prompts.PanelSpec{
			Description: s.Description,
			Style:       styleOf(model),
			Quality:     call.Quality,
		}
	}

	refs, err := mc.renderPanels(ctx, logger, specs)
	if err != nil {
		return nil, err
	}

	panels := make([]domain.Panel, len(scripts))
	for i, s := range scripts {
		panels[i] = domain.Panel{
			ID:          i,
			ImageRef:    refs[i],
			Description: s.Description,
			Dialogues:   s.Dialogues,
		}
	}
	return panels, nil
}

// RegeneratePanel は編集されたプロンプトで1パネルだけを描き直します。
func (mc *MangaComposer) RegeneratePanel(ctx context.Context, call remote.RegenerateCall) (remote.RegenerateResult, error) {
	logger := mc.logger.With("session_id", call.SessionID, "round", call.Round, "attempt", call.Attempt)
	ref, err := mc.renderPanel(ctx, logger, call.PanelID, prompts.PanelSpec{
		Description: call.Description,
		Prompt:      call.Prompt,
	})
	if err != nil {
		return remote.RegenerateResult{}, err
	}
	return remote.RegenerateResult{PanelID: call.PanelID, ImageRef: ref, Prompt: call.Prompt}, nil
}

// styleOf はモデルの説明を画風の指定として使います。説明が無ければ表示名です。
func styleOf(m domain.ModelDescriptor) string {
	if m.Description != "" {
		return m.Description
	}
	return m.DisplayName
}
