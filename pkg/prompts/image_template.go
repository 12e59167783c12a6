package prompts

import (
	"fmt"
	"strings"

	"github.com/shouni/go-manga-studio/pkg/domain"
)

const (
	// CinematicTags クオリティ向上のための共通タグ
	CinematicTags = "cinematic composition, high resolution, sharp focus"

	// NegativePanelPrompt は、パネル用のネガティブプロンプトです。
	NegativePanelPrompt = "speech bubble, dialogue balloon, text, alphabet, letters, words, signatures, watermark, username, low quality, distorted, bad anatomy"

	// RenderingStyle は共通の画風を定義します。
	RenderingStyle = `### GLOBAL VISUAL STYLE ###
- RENDERING: Sharp clean lineart, vibrant colors, no blurring, high contrast, cinematic manga lighting.`

	mangaSystemInstruction = "You are a professional manga illustrator. Create a single high-quality manga panel."
)

// BuildCharacterConsistency はプロンプトに登場するキャラクターの外見を追記し、先頭のキャラクターの seed を返します。
// 登場キャラクターがいなければプロンプトをそのまま返し、seed は nil です。
func BuildCharacterConsistency(prompt string, chars domain.CharactersMap) (string, *int64) {
	mentioned := chars.Mentioned(prompt)
	if len(mentioned) == 0 {
		return prompt, nil
	}

	descs := make([]string, 0, len(mentioned))
	for _, c := range mentioned {
		descs = append(descs, fmt.Sprintf("%s: %s", c.Name, strings.Join(c.VisualCues, ", ")))
	}
	seed := mentioned[0].SeedOf()
	return prompt + "\nEnsure character consistency: " + strings.Join(descs, "; "), &seed
}
