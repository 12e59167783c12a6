package builder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-http-kit/httpkit"
	"golang.org/x/time/rate"

	"github.com/shouni/go-manga-studio/internal/config"
	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/generator"
	"github.com/shouni/go-manga-studio/pkg/remote"
	"github.com/shouni/go-manga-studio/pkg/workflow"
)

// placeholderLatency はプレースホルダーのバックエンドが各呼び出しで待つ時間です。
const placeholderLatency = 300 * time.Millisecond

// Backend は構築済みの生成バックエンドです。Assets は画像を自前で配信する場合だけ設定されます。
type Backend struct {
	Service remote.Service
	Assets  remote.AssetSource
}

// BuildBackend は設定に応じた生成バックエンドを構築します。
// BackendURL があればリモートのサービスを、無ければ kind で指定されたプロセス内のバックエンドを使います。
func BuildBackend(ctx context.Context, appCtx *AppContext, kind string) (Backend, error) {
	cfg := appCtx.Config
	if cfg.Remote() {
		svc, err := BuildRemoteClient(cfg)
		if err != nil {
			return Backend{}, err
		}
		return Backend{Service: svc}, nil
	}

	switch kind {
	case "", config.BackendPlaceholder:
		return Backend{Service: remote.NewPlaceholder(appCtx.Catalog, placeholderLatency)}, nil
	case config.BackendGemini:
		mc, err := BuildMangaComposer(ctx, appCtx)
		if err != nil {
			return Backend{}, err
		}
		return Backend{Service: mc, Assets: mc.Assets()}, nil
	default:
		return Backend{}, fmt.Errorf("未知のバックエンドです: %q (%s か %s を指定してください)", kind, config.BackendPlaceholder, config.BackendGemini)
	}
}

// BuildRemoteClient は HTTP 越しの生成バックエンドを構築します。
// モデル一覧はキャッシュし、生成呼び出しはレート制限をかけます。
func BuildRemoteClient(cfg *config.Config) (remote.Service, error) {
	client, err := remote.NewClient(cfg.BackendURL, InitializeHTTPClient(cfg.HTTPTimeout), slog.Default())
	if err != nil {
		return nil, fmt.Errorf("リモートクライアントの初期化に失敗しました: %w", err)
	}
	limited := remote.NewLimited(client, cfg.RateInterval, domain.MaxPanelCount)
	return remote.NewCachedCatalog(limited, remote.DefaultCatalogTTL), nil
}

// InitializeHTTPClient は go-http-kit のクライアントを remote.Doer として返します。
func InitializeHTTPClient(timeout time.Duration) remote.Doer {
	return httpkit.New(timeout)
}

// BuildMangaComposer は Gemini を使う MangaComposer を構築します。
func BuildMangaComposer(ctx context.Context, appCtx *AppContext) (*generator.MangaComposer, error) {
	cfg := appCtx.Config

	textModel, err := generator.NewGeminiTextModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}
	imager, err := generator.NewGeminiImager(ctx, cfg.GeminiAPIKey, cfg.GeminiImageModel)
	if err != nil {
		return nil, err
	}

	mc, err := generator.NewMangaComposer(generator.ComposerArgs{
		TextModel:      textModel,
		ImageGenerator: imager,
		Catalog:        appCtx.Catalog,
		CharactersMap:  appCtx.Characters,
		StyleSuffix:    cfg.ImagePromptSuffix,
		RateLimiter:    rate.NewLimiter(rate.Every(cfg.RateInterval), 2),
	})
	if err != nil {
		return nil, fmt.Errorf("画像生成エンジンの初期化に失敗しました: %w", err)
	}
	return mc, nil
}

// BuildCoordinator はバックエンドとティアからワークフローを構築します。
// プロセス内のバックエンドではカタログが手元にあるため、一覧の取得を省略します。
func BuildCoordinator(ctx context.Context, appCtx *AppContext, svc remote.Service, t domain.Tier) (*workflow.Coordinator, error) {
	args := workflow.Args{
		Service: svc,
		Tier:    t,
		Config:  workflow.DefaultConfig(),
		Logger:  slog.Default(),
	}
	if !appCtx.Config.Remote() {
		args.Catalog = appCtx.Catalog
	}
	coord, err := workflow.New(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("ワークフローの初期化に失敗しました: %w", err)
	}
	return coord, nil
}
