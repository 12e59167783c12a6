package workflow

import (
	"log/slog"

	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/regenerator"
	"github.com/shouni/go-manga-studio/pkg/remote"
	"github.com/shouni/go-manga-studio/pkg/session"
	"github.com/shouni/go-manga-studio/pkg/tier"
)

// Args は Coordinator の構築に必要な依存関係です。
type Args struct {
	// Service は生成バックエンドです。必須です。
	Service remote.Service
	// Tier は初期ティアです。
	Tier domain.Tier
	// Catalog が nil の場合は Service.ListModels からティアごとに取得します。
	Catalog tier.Catalog
	Config  Config
	Logger  *slog.Logger

	// Session と Regenerator は差し替え用です。nil なら Service から作成します。
	Session     *session.Session
	Regenerator *regenerator.Regenerator
}

// Snapshot は描画用のワークフロー全体の状態です。
type Snapshot struct {
	SessionID     string                   `json:"session_id"`
	Tier          domain.Tier              `json:"tier"`
	State         string                   `json:"state"`
	Round         uint64                   `json:"round"`
	Error         string                   `json:"error,omitempty"`
	Panels        domain.Panels            `json:"panels"`
	PanelStates   map[int]string           `json:"panel_states,omitempty"`
	PanelErrors   map[int]string           `json:"panel_errors,omitempty"`
	AllowedModels []domain.ModelDescriptor `json:"allowed_models"`
	DefaultModel  string                   `json:"default_model,omitempty"`
}
