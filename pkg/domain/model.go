package domain

import (
	"strings"
)

const (
	// MinPanelCount は1ページあたりの最小パネル数です。
	MinPanelCount = 1
	// MaxPanelCount は1ページあたりの最大パネル数です。
	MaxPanelCount = 12
)

// ModelDescriptor は生成モデル1件のカタログ情報です。読み込み後は変更しません。
type ModelDescriptor struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	MinTier     Tier   `json:"min_tier" yaml:"min_tier"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// UsableBy は指定ティアでこのモデルが利用可能かを返します。
func (m ModelDescriptor) UsableBy(t Tier) bool {
	return t.Rank() >= m.MinTier.Rank()
}

// GenerationRequest はページ全体の生成要求です。送信ごとに新しく作り、以後変更しません。
type GenerationRequest struct {
	Narrative  string `json:"narrative"`
	PanelCount int    `json:"panel_count"`
	ModelID    string `json:"model_id"`
}

// Validate はリクエストの形だけを検査します。モデルの利用資格はティアに依存するため呼び出し側で確認します。
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Narrative) == "" {
		return Validation("submit", "ストーリー本文が空です")
	}
	if r.PanelCount < MinPanelCount || r.PanelCount > MaxPanelCount {
		return Validationf("submit", "パネル数は %d から %d の範囲で指定してください (指定値: %d)", MinPanelCount, MaxPanelCount, r.PanelCount)
	}
	if strings.TrimSpace(r.ModelID) == "" {
		return Validation("submit", "モデルが選択されていません")
	}
	return nil
}
