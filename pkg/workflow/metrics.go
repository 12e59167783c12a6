package workflow

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shouni/go-manga-studio/pkg/domain"
)

// ラベルにセッション ID やパネル ID は入れません。

var (
	// SubmissionsTotal はページ生成の送信数を結果別に数えます。
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manga_studio_submissions_total",
		Help: "Total number of whole-page submissions, by outcome.",
	}, []string{"outcome"})

	// RegenerationsTotal はパネル再生成の要求数を結果別に数えます。
	RegenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manga_studio_regenerations_total",
		Help: "Total number of panel regenerations, by outcome.",
	}, []string{"outcome"})

	// StaleDiscardedTotal は破棄した古い応答の数です。
	StaleDiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manga_studio_stale_discarded_total",
		Help: "Total number of stale remote responses discarded, by target (session/panel).",
	}, []string{"target"})

	// TierChangesTotal はティア変更の回数です。
	TierChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "manga_studio_tier_changes_total",
		Help: "Total number of tier changes applied to a coordinator.",
	})

	// RegenerationsInFlight は応答待ちのパネル再生成数です。
	RegenerationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "manga_studio_regenerations_in_flight",
		Help: "Current number of panel regenerations awaiting a remote response.",
	})
)

// outcome はエラーをメトリクスのラベル値に変換します。
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrStale):
		return "stale"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrGeneration):
		return "generation"
	default:
		return "error"
	}
}
