package remote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendRequestsTotal は Handler が処理したリクエスト数をルートとステータス別に数えます。
	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manga_studio_backend_requests_total",
		Help: "Total number of backend HTTP requests, by route pattern and status code.",
	}, []string{"route", "code"})

	// StaleEchoesTotal は Client が受け取った宛先違いの応答数です。
	StaleEchoesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "manga_studio_stale_echoes_total",
		Help: "Total number of remote responses whose session/round echo did not match the call.",
	}, []string{"call"})
)

const unmatchedRoute = "unmatched"
