package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/gemini-image-kit/ports"
	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-manga-studio/pkg/prompts"
)

// renderPanels は、並列処理を用いてパネル群の画像を生成し、画像の参照を並び順で返します。
// 1枚でも失敗した場合はページ全体の失敗です。
func (mc *MangaComposer) renderPanels(ctx context.Context, logger *slog.Logger, specs []prompts.PanelSpec) ([]string, error) {
	refs := make([]string, len(specs))
	eg, egCtx := errgroup.WithContext(ctx)

	for i, spec := range specs {
		eg.Go(func() error {
			ref, err := mc.renderPanel(egCtx, logger, i, spec)
			if err != nil {
				return err
			}
			refs[i] = ref
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

// renderPanel はレートリミッターで順番を待ってから1コマを生成し、AssetStore に保存します。
func (mc *MangaComposer) renderPanel(ctx context.Context, logger *slog.Logger, panelID int, spec prompts.PanelSpec) (string, error) {
	if err := mc.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("panel %d: レート制限の待機中にエラーが発生しました: %w", panelID, err)
	}

	userPrompt, systemPrompt, seed := mc.promptBuilder.BuildPanel(spec)

	logger = logger.With("panel_id", panelID, "fixed_seed", seed != nil)
	logger.InfoContext(ctx, "Starting panel generation")

	startTime := time.Now()
	resp, err := mc.imageGenerator.GenerateMangaPanel(ctx, ports.ImagePanelRequest{
		GenerationOptions: ports.GenerationOptions{
			Prompt:         userPrompt,
			NegativePrompt: prompts.NegativePanelPrompt,
			SystemPrompt:   systemPrompt,
			Seed:           seed,
			AspectRatio:    PanelAspectRatio,
		},
	})
	if err != nil {
		return "", fmt.Errorf("panel %d generation failed: %w", panelID, err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return "", fmt.Errorf("panel %d generation failed: 画像データが空です", panelID)
	}

	logger.InfoContext(ctx, "Panel generation completed", "duration", time.Since(startTime).Round(time.Millisecond))
	return mc.assets.Put(resp.Data, resp.MimeType), nil
}
