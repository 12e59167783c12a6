package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shouni/go-manga-studio/internal/builder"
	"github.com/shouni/go-manga-studio/internal/config"
	"github.com/shouni/go-manga-studio/pkg/domain"
)

var (
	// cfg は環境変数で初期化され、フラグで上書きされるのだ
	cfg     = config.LoadConfig()
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "manga-studio",
	Short: "ナラティブから漫画ページを生成し、パネルごとに描き直すのだ。",
	Long: `ストーリーの文章と選んだモデルから漫画ページを生成するのだ。
生成後はパネル単位でプロンプトを編集して再生成できるのだよ。
利用できるモデルはティア (FREE / BASIC / PRO / ENTERPRISE) で決まるのだ。`,
	SilenceUsage:      true,
	PersistentPreRunE: preRunAppE,
}

func init() {
	addAppFlags(rootCmd)
	rootCmd.AddCommand(modelsCmd, generateCmd, serveCmd)
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "デバッグログを出力するのだ。")
	rootCmd.PersistentFlags().StringVarP(&cfg.Tier, "tier", "t", cfg.Tier, "利用者のティアなのだ (FREE / BASIC / PRO / ENTERPRISE)。")
	rootCmd.PersistentFlags().StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "生成バックエンドの URL なのだ。空ならプロセス内で生成するのだ。")
	rootCmd.PersistentFlags().StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "モデルカタログの YAML パスなのだ。")
	rootCmd.PersistentFlags().StringVarP(&cfg.CharactersFile, "char-config", "c", cfg.CharactersFile, "キャラクターの視覚情報を定義した JSON パスなのだ。")
	rootCmd.PersistentFlags().DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "バックエンドへのリクエストのタイムアウトなのだ。")
	rootCmd.PersistentFlags().DurationVar(&cfg.RateInterval, "rate-interval", cfg.RateInterval, "生成呼び出しの最小間隔なのだ。")
}

// preRunAppE は、コマンド実行前にロガーとティアを確認するのだ。
func preRunAppE(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	_, err := domain.ParseTier(cfg.Tier)
	return err
}

// newApp はカタログとキャラクターを読み込み、ティアと一緒に返すのだ。
func newApp() (*builder.AppContext, domain.Tier, error) {
	t, err := domain.ParseTier(cfg.Tier)
	if err != nil {
		return nil, 0, err
	}
	appCtx, err := builder.NewAppContext(cfg)
	if err != nil {
		return nil, 0, err
	}
	return appCtx, t, nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// SIGINT / SIGTERM で実行中の生成をキャンセルするのだよ。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
