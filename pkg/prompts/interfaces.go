package prompts

import "github.com/shouni/go-manga-studio/pkg/tier"

// ScriptPrompt は、ナラティブをパネルに分割させる AI プロンプトを構築する契約です。
type ScriptPrompt interface {
	Build(mode string, data TemplateData) (string, error)
}

// ImagePrompt は、パネル画像の生成プロンプトを構築する契約です。
type ImagePrompt interface {
	// BuildPanel は、ユーザープロンプト、システムプロンプト、および使用する seed 値 (無ければ nil) を決定します。
	BuildPanel(spec PanelSpec) (userPrompt string, systemPrompt string, seed *int64)
}

// PanelSpec は1パネル分の作画指示です。
type PanelSpec struct {
	// Description はパネルの場面説明です。
	Description string
	// Prompt はユーザーが編集したプロンプトです。再生成時のみ設定されます。
	Prompt string
	// Style はモデルごとの画風の指定です。
	Style   string
	Quality tier.QualitySettings
}
