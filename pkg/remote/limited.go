package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/shouni/go-manga-studio/pkg/domain"
)

// Limited は生成と再生成の呼び出しをレートリミッターで間引く Service です。
type Limited struct {
	Service
	limiter *rate.Limiter
}

// NewLimited は interval ごとに1回 (最大 burst 回まで連続) の呼び出しを許可します。
func NewLimited(svc Service, interval time.Duration, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		Service: svc,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

func (l *Limited) Generate(ctx context.Context, call GenerateCall) ([]domain.Panel, error) {
	if err := l.wait(ctx, "generate"); err != nil {
		return nil, err
	}
	return l.Service.Generate(ctx, call)
}

func (l *Limited) RegeneratePanel(ctx context.Context, call RegenerateCall) (RegenerateResult, error) {
	if err := l.wait(ctx, "regenerate"); err != nil {
		return RegenerateResult{}, err
	}
	return l.Service.RegeneratePanel(ctx, call)
}

// wait は期限内に順番が来ない場合を TimeoutError として返します。
func (l *Limited) wait(ctx context.Context, op string) error {
	err := l.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("レート制限の待機中にキャンセルされました: %w", ctx.Err())
	}
	return domain.Timeout(op, fmt.Errorf("レート制限の待機中にエラーが発生しました: %w", err))
}
