package prompts

import (
	_ "embed"
)

const (
	ModeNarrative = "narrative"
)

// TemplateData はナラティブ分割プロンプトのテンプレートに渡すデータ構造です。
type TemplateData struct {
	Narrative  string
	PanelCount int
	Characters []string
}

var (
	//go:embed narrative.md
	NarrativePrompt string
)

// allTemplates はモードとテンプレート文字列を紐づけるマップなのだ。
var allTemplates = map[string]string{
	ModeNarrative: NarrativePrompt,
}
