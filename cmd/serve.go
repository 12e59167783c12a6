package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-manga-studio/internal/builder"
	"github.com/shouni/go-manga-studio/pkg/remote"
)

const shutdownTimeout = 5 * time.Second

var serveBackend string

// serveCmd は、生成バックエンドを HTTP/JSON で公開するのだ。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "生成バックエンドを HTTP で公開するのだ。",
	Long: `モデル一覧・ページ生成・パネル再生成の API と、生成画像、/metrics を配信するのだ。
--backend-url を指定すると、別のバックエンドへの中継になるのだよ。`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "待ち受けるアドレスなのだ。")
	serveCmd.Flags().StringVar(&serveBackend, "backend", "placeholder", "プロセス内のバックエンドなのだ (placeholder / gemini)。")
}

func serveCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	appCtx, err := builder.NewAppContext(cfg)
	if err != nil {
		return err
	}
	backend, err := builder.BuildBackend(ctx, appCtx, serveBackend)
	if err != nil {
		return err
	}

	opts := []remote.HandlerOption{remote.WithMetrics(), remote.WithHandlerLogger(slog.Default())}
	if backend.Assets != nil {
		opts = append(opts, remote.WithAssets(backend.Assets))
	}

	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: remote.NewHandler(backend.Service, opts...),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		slog.Info("生成バックエンドを公開するのだ！", "addr", cfg.ListenAddr, "backend", serveBackend, "remote", cfg.BackendURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		slog.Debug("サーバーを停止するのだ")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
