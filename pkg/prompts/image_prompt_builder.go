package prompts

import (
	"sort"

	"github.com/shouni/go-manga-studio/pkg/domain"
)

// ImagePromptBuilder は、キャラクター情報を考慮してパネル画像のプロンプトを構築します。
type ImagePromptBuilder struct {
	characterMap  domain.CharactersMap
	defaultSuffix string // "anime style, high quality" 等の共通サフィックス
}

var _ ImagePrompt = (*ImagePromptBuilder)(nil)

// NewImagePromptBuilder は新しい ImagePromptBuilder を生成します。
func NewImagePromptBuilder(chars domain.CharactersMap, suffix string) *ImagePromptBuilder {
	return &ImagePromptBuilder{
		characterMap:  chars,
		defaultSuffix: suffix,
	}
}

// Characters はプロンプトに注入するキャラクター名を名前順で返します。
func (pb *ImagePromptBuilder) Characters() []string {
	names := make([]string, 0, len(pb.characterMap))
	for _, c := range pb.characterMap {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names
}
