package remote

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shouni/go-manga-studio/pkg/domain"
)

// maxRequestBody はリクエスト本文の上限です。ナラティブは長くても数十 KB です。
const maxRequestBody = 1 << 20

// AssetSource は生成済み画像を ID で返します。
type AssetSource interface {
	Asset(id string) (data []byte, mimeType string, ok bool)
}

type handler struct {
	svc     Service
	assets  AssetSource
	metrics bool
	logger  *slog.Logger
}

// HandlerOption は Handler の設定を変更します。
type HandlerOption func(*handler)

// WithAssets は GET /v1/assets/{id} を有効にします。
func WithAssets(src AssetSource) HandlerOption {
	return func(h *handler) { h.assets = src }
}

// WithMetrics は GET /metrics を有効にします。
func WithMetrics() HandlerOption {
	return func(h *handler) { h.metrics = true }
}

// WithHandlerLogger はアクセスログのロガーを差し替えます。
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler は Service を HTTP/JSON バインディングで公開する chi ルーターを返します。
func NewHandler(svc Service, opts ...HandlerOption) http.Handler {
	h := &handler{svc: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		h.accessLog,
		middleware.Recoverer,
	)

	r.Get(PathModels, h.listModels)
	r.Post(PathGenerate, h.generate)
	r.Post(PathRegenerate, h.regenerate)
	if h.assets != nil {
		r.Get(PathAssets, h.asset)
	}
	if h.metrics {
		r.Handle(PathMetrics, promhttp.Handler())
	}
	return r
}

func (h *handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		BackendRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()

		h.logger.InfoContext(r.Context(), "HTTP リクエスト",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (h *handler) listModels(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tier")
	if raw == "" {
		h.writeError(w, r, domain.Validation("list_models", "tier クエリパラメータは必須です"))
		return
	}
	t, err := domain.ParseTier(raw)
	if err != nil {
		h.writeError(w, r, domain.Validationf("list_models", "%v", err))
		return
	}
	models, err := h.svc.ListModels(r.Context(), t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if models == nil {
		models = []domain.ModelDescriptor{}
	}
	writeJSON(w, http.StatusOK, modelsResponse{Tier: t, Models: models})
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	var call GenerateCall
	if err := decodeBody(w, r, &call); err != nil {
		h.writeError(w, r, domain.Validationf("generate", "リクエスト本文が不正です: %v", err))
		return
	}
	if err := call.Request.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	panels, err := h.svc.Generate(r.Context(), call)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{SessionID: call.SessionID, Round: call.Round, Panels: panels})
}

func (h *handler) regenerate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		h.writeError(w, r, domain.Validationf("regenerate", "パネル ID が不正です: %q", chi.URLParam(r, "id")))
		return
	}
	var call RegenerateCall
	if err := decodeBody(w, r, &call); err != nil {
		h.writeError(w, r, domain.Validationf("regenerate", "リクエスト本文が不正です: %v", err))
		return
	}
	call.PanelID = id
	if strings.TrimSpace(call.Prompt) == "" {
		h.writeError(w, r, domain.Validation("regenerate", "プロンプトが空です").OnPanel(id))
		return
	}

	res, err := h.svc.RegeneratePanel(r.Context(), call)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res.PanelID = id
	writeJSON(w, http.StatusOK, regenerateResponse{
		SessionID:        call.SessionID,
		Round:            call.Round,
		Attempt:          call.Attempt,
		RegenerateResult: res,
	})
}

func (h *handler) asset(w http.ResponseWriter, r *http.Request) {
	data, mimeType, ok := h.assets.Asset(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	typ, status := errorType(err)
	h.logger.WarnContext(r.Context(), "リクエストの処理に失敗しました",
		"path", r.URL.Path,
		"status", status,
		"type", typ,
		"error", err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Type: typ})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
