package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-manga-studio/internal/builder"
	"github.com/shouni/go-manga-studio/pkg/asset"
	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/workflow"
)

// GenerateOptions は generate コマンドのフラグなのだ。
type GenerateOptions struct {
	Narrative     string
	NarrativeFile string // '-' で標準入力なのだ
	PanelCount    int
	Model         string
	Backend       string
	Regens        []string // "パネルID=プロンプト"
	OutputDir     string
}

var genOpts GenerateOptions

// generateCmd は、ページを生成し、指定されたパネルを並行して描き直すのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "ナラティブから漫画ページを生成するのだ。",
	Long: `ナラティブを指定数のパネルに分割して画像を生成するのだ。
--regen 2="darker tone" のように指定すると、生成後にそのパネルだけ描き直すのだよ。
結果のページは JSON で標準出力に書き出すのだ。`,
	RunE: generateCommand,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genOpts.Narrative, "narrative", "n", "", "ストーリーの本文なのだ。")
	f.StringVarP(&genOpts.NarrativeFile, "narrative-file", "f", "", "ストーリーを読むファイルなのだ（'-'で標準入力なのだ）。")
	f.IntVarP(&genOpts.PanelCount, "panels", "p", 4, fmt.Sprintf("パネル数なのだ (%d-%d)。", domain.MinPanelCount, domain.MaxPanelCount))
	f.StringVarP(&genOpts.Model, "model", "m", cfg.Model, "生成モデルの ID なのだ。省略時はティアの既定モデルなのだ。")
	f.StringVar(&genOpts.Backend, "backend", "placeholder", "プロセス内のバックエンドなのだ (placeholder / gemini)。")
	f.StringArrayVar(&genOpts.Regens, "regen", nil, "生成後に描き直すパネルなのだ (例: 2=\"darker tone\")。繰り返し指定できるのだ。")
	f.StringVarP(&genOpts.OutputDir, "output-image-dir", "o", "", "生成画像を保存するディレクトリなのだ。")
}

func generateCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// 1. 入力の確認
	narrative, err := readNarrative(cmd.InOrStdin(), genOpts)
	if err != nil {
		return err
	}
	regens, err := parseRegens(genOpts.Regens)
	if err != nil {
		return err
	}

	// 2. ワークフローの構築
	appCtx, t, err := newApp()
	if err != nil {
		return err
	}
	backend, err := builder.BuildBackend(ctx, appCtx, genOpts.Backend)
	if err != nil {
		return err
	}
	coord, err := builder.BuildCoordinator(ctx, appCtx, backend.Service, t)
	if err != nil {
		return err
	}

	model := genOpts.Model
	if model == "" {
		def, ok := coord.DefaultModel()
		if !ok {
			return fmt.Errorf("ティア %s で利用できるモデルがないのだ", t)
		}
		model = def.ID
	}

	slog.Info("漫画ページの生成を開始するのだ！", "tier", t, "model", model, "panels", genOpts.PanelCount, "session_id", coord.Session().ID())

	// 3. ページ全体の生成
	if _, err := coord.Submit(ctx, domain.GenerationRequest{
		Narrative:  narrative,
		PanelCount: genOpts.PanelCount,
		ModelID:    model,
	}); err != nil {
		return fmt.Errorf("ページの生成に失敗したのだ: %w", err)
	}

	// 4. パネルの再生成は並行に行い、失敗してもほかのパネルは続けるのだ
	regenErr := regenerate(cmd, coord, regens)

	snap := coord.Snapshot()
	if err := asset.NewExporter(genOpts.OutputDir).Export(snap.Panels, backend.Assets); err != nil {
		return err
	}
	for i := range snap.Panels {
		snap.Panels[i].ImageRef = cfg.AssetURL(snap.Panels[i].ImageRef)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("結果の書き出しに失敗したのだ: %w", err)
	}

	if regenErr != nil {
		return regenErr
	}
	slog.Info("すべての生成工程が完了したのだ！", "round", snap.Round)
	return nil
}

func regenerate(cmd *cobra.Command, coord *workflow.Coordinator, regens map[int]string) error {
	var (
		eg   errgroup.Group
		errs = make([]error, len(regens))
	)
	ids := make([]int, 0, len(regens))
	for id := range regens {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for i, id := range ids {
		eg.Go(func() error {
			if _, err := coord.Regenerate(cmd.Context(), id, regens[id]); err != nil {
				slog.Warn("パネルの再生成に失敗したのだ", "panel_id", id, "error", err)
				errs[i] = fmt.Errorf("panel %d: %w", id, err)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}

func readNarrative(stdin io.Reader, opts GenerateOptions) (string, error) {
	switch {
	case opts.Narrative != "":
		return opts.Narrative, nil
	case opts.NarrativeFile == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("標準入力の読み込みに失敗したのだ: %w", err)
		}
		return string(b), nil
	case opts.NarrativeFile != "":
		b, err := os.ReadFile(opts.NarrativeFile)
		if err != nil {
			return "", fmt.Errorf("ナラティブの読み込みに失敗したのだ: %w", err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("ソース（--narrative または --narrative-file）を指定してほしいのだ")
	}
}

// parseRegens は "2=darker tone" 形式の指定をパネル ID ごとのプロンプトにするのだ。
func parseRegens(specs []string) (map[int]string, error) {
	regens := make(map[int]string, len(specs))
	for _, s := range specs {
		idStr, prompt, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("--regen は ID=プロンプト の形式で指定してほしいのだ: %q", s)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil || id < 0 {
			return nil, fmt.Errorf("--regen のパネル ID が不正なのだ: %q", idStr)
		}
		if _, dup := regens[id]; dup {
			return nil, fmt.Errorf("パネル %d の --regen が重複しているのだ", id)
		}
		regens[id] = prompt
	}
	return regens, nil
}
