// Package remote は生成バックエンドとの契約 (モデル一覧・ページ生成・パネル再生成) と、
// その HTTP/JSON バインディングを提供します。
package remote

import (
	"context"

	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/tier"
)

// ModelLister はティアごとのモデル一覧を返します。読み取り専用で冪等です。
type ModelLister interface {
	ListModels(ctx context.Context, t domain.Tier) ([]domain.ModelDescriptor, error)
}

// PageGenerator はページ全体を生成します。submit 1回につき高々1回だけ呼ばれます。
type PageGenerator interface {
	Generate(ctx context.Context, call GenerateCall) ([]domain.Panel, error)
}

// PanelService は1パネルだけを再生成します。
type PanelService interface {
	RegeneratePanel(ctx context.Context, call RegenerateCall) (RegenerateResult, error)
}

// Service は生成バックエンドの全契約です。
type Service interface {
	ModelLister
	PageGenerator
	PanelService
}

// GenerateCall はページ生成呼び出しです。SessionID と Round で応答の鮮度を判定します。
type GenerateCall struct {
	SessionID string                   `json:"session_id"`
	Round     uint64                   `json:"round"`
	Tier      domain.Tier              `json:"tier"`
	Request   domain.GenerationRequest `json:"request"`
	Quality   tier.QualitySettings     `json:"quality"`
}

// RegenerateCall はパネル再生成呼び出しです。Attempt はパネルごとの試行番号です。
type RegenerateCall struct {
	SessionID   string `json:"session_id"`
	Round       uint64 `json:"round"`
	Attempt     uint64 `json:"attempt"`
	PanelID     int    `json:"panel_id"`
	Prompt      string `json:"prompt"`
	Description string `json:"description,omitempty"`
}

// RegenerateResult はパネル再生成の結果です。
type RegenerateResult struct {
	PanelID  int    `json:"panel_id"`
	ImageRef string `json:"image_ref"`
	Prompt   string `json:"prompt"`
}
