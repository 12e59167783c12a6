package prompts

import (
	"fmt"
	"strings"
)

// BuildPanel は、単体パネル用の UserPrompt, SystemPrompt, およびシード値を生成します。
// 編集済みプロンプトがあればそれを主とし、場面説明は文脈として添えます。
func (pb *ImagePromptBuilder) BuildPanel(spec PanelSpec) (userPrompt string, systemPrompt string, seed *int64) {
	// --- 1. System Prompt の構築 ---
	systemParts := []string{
		mangaSystemInstruction,
		RenderingStyle,
		CinematicTags,
	}
	if style := strings.TrimSpace(spec.Style); style != "" {
		systemParts = append(systemParts, fmt.Sprintf("### MODEL STYLE ###\n%s", style))
	}
	if pb.defaultSuffix != "" {
		systemParts = append(systemParts, fmt.Sprintf("### STYLE DNA ###\n%s", pb.defaultSuffix))
	}
	if q := spec.Quality; q.Width > 0 && q.Height > 0 {
		systemParts = append(systemParts, fmt.Sprintf("### OUTPUT QUALITY ###\n- TARGET RESOLUTION: %dx%d\n- DETAIL LEVEL: %d steps, guidance %.1f",
			q.Width, q.Height, q.Steps, q.CFGScale))
	}
	systemPrompt = strings.Join(systemParts, "\n\n")

	// --- 2. User Prompt の構築 ---
	var parts []string
	if p := strings.TrimSpace(spec.Prompt); p != "" {
		parts = append(parts, p)
		if d := strings.TrimSpace(spec.Description); d != "" {
			parts = append(parts, "Scene: "+d)
		}
	} else if d := strings.TrimSpace(spec.Description); d != "" {
		parts = append(parts, "Manga panel of "+d)
	}
	userPrompt = strings.Join(parts, "\n")

	// --- 3. キャラクターの一貫性 ---
	userPrompt, seed = BuildCharacterConsistency(userPrompt, pb.characterMap)
	return userPrompt, systemPrompt, seed
}
