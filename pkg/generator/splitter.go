package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/prompts"
)

var (
	jsonBlockRegex   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")
	panelHeaderRegex = regexp.MustCompile(`(?i)panel\s*(\d+)\s*[:|\-]\s*`)
	numberedRegex    = regexp.MustCompile(`(?m)^\s*(\d+)[.)]\s*`)
)

// PanelScript は AI が分割した1コマ分の台本です。
type PanelScript struct {
	Description string   `json:"description"`
	Dialogues   []string `json:"dialogues,omitempty"`
}

type scriptResponse struct {
	Panels []PanelScript `json:"panels"`
}

// NarrativeSplitter はナラティブを指定数のパネル台本に分割します。
type NarrativeSplitter struct {
	model      TextModel
	prompt     prompts.ScriptPrompt
	characters []string
}

// NewNarrativeSplitter は NarrativeSplitter を初期化します。characters はプロンプトで名前を固定するキャラクターです。
func NewNarrativeSplitter(model TextModel, prompt prompts.ScriptPrompt, characters []string) (*NarrativeSplitter, error) {
	if model == nil {
		return nil, fmt.Errorf("TextModel は必須です")
	}
	if prompt == nil {
		pb, err := prompts.NewTextPromptBuilder()
		if err != nil {
			return nil, fmt.Errorf("TextPromptBuilder の新規作成に失敗しました: %w", err)
		}
		prompt = pb
	}
	return &NarrativeSplitter{model: model, prompt: prompt, characters: characters}, nil
}

// Split はナラティブを panelCount 個の台本に分割します。AI の応答が過不足でも必ず panelCount 個を返します。
func (s *NarrativeSplitter) Split(ctx context.Context, narrative string, panelCount int) ([]PanelScript, error) {
	finalPrompt, err := s.prompt.Build(prompts.ModeNarrative, prompts.TemplateData{
		Narrative:  narrative,
		PanelCount: panelCount,
		Characters: s.characters,
	})
	if err != nil {
		return nil, fmt.Errorf("プロンプト生成に失敗: %w", err)
	}

	slog.InfoContext(ctx, "NarrativeSplitter: Calling text model", "panel_count", panelCount)
	raw, err := s.model.GenerateText(ctx, finalPrompt)
	if err != nil {
		return nil, fmt.Errorf("ナラティブの分割に失敗しました: %w", err)
	}

	scripts := parseResponse(raw)
	if len(scripts) != panelCount {
		slog.WarnContext(ctx, "NarrativeSplitter: panel count adjusted", "want", panelCount, "got", len(scripts))
	}
	return fitPanels(scripts, panelCount), nil
}

// parseResponse は AI の応答を台本に変換します。JSON を優先し、読めなければ
// "## Panel" の Markdown 形式、"Panel N:" 形式、"N." 形式、行ごとの分割の順に試します。
func parseResponse(raw string) []PanelScript {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if scripts, ok := parseJSON(raw); ok {
		return scripts
	}
	if scripts := parseMarkdown(raw); len(scripts) > 0 {
		return scripts
	}
	if scripts := splitByMarkers(raw, panelHeaderRegex); len(scripts) > 0 {
		return scripts
	}
	if scripts := splitByMarkers(raw, numberedRegex); len(scripts) > 0 {
		return scripts
	}

	var scripts []PanelScript
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			scripts = append(scripts, PanelScript{Description: line})
		}
	}
	return scripts
}

func parseJSON(raw string) ([]PanelScript, bool) {
	var rawJSON string
	if matches := jsonBlockRegex.FindStringSubmatch(raw); len(matches) > 1 {
		rawJSON = matches[1]
	} else {
		// 最も外側の JSON オブジェクトか配列を探します
		rawJSON = outermost(raw, "{", "}")
		if rawJSON == "" {
			rawJSON = outermost(raw, "[", "]")
		}
		if rawJSON == "" {
			return nil, false
		}
	}

	var obj scriptResponse
	if err := json.Unmarshal([]byte(rawJSON), &obj); err == nil && len(obj.Panels) > 0 {
		return cleanScripts(obj.Panels), true
	}
	var list []PanelScript
	if err := json.Unmarshal([]byte(rawJSON), &list); err == nil && len(list) > 0 {
		return cleanScripts(list), true
	}
	return nil, false
}

func outermost(raw, openTok, closeTok string) string {
	first := strings.Index(raw, openTok)
	last := strings.LastIndex(raw, closeTok)
	if first == -1 || last == -1 || last <= first {
		return ""
	}
	return raw[first : last+1]
}

// splitByMarkers は見出しの正規表現で区切られた本文を台本にします。
func splitByMarkers(raw string, marker *regexp.Regexp) []PanelScript {
	locs := marker.FindAllStringIndex(raw, -1)
	if len(locs) == 0 {
		return nil
	}
	scripts := make([]PanelScript, 0, len(locs))
	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if desc := strings.TrimSpace(raw[loc[1]:end]); desc != "" {
			scripts = append(scripts, PanelScript{Description: desc})
		}
	}
	return scripts
}

func cleanScripts(in []PanelScript) []PanelScript {
	out := make([]PanelScript, 0, len(in))
	for _, s := range in {
		s.Description = strings.TrimSpace(s.Description)
		out = append(out, s)
	}
	return out
}

// fitPanels は台本を n 個に揃えます。足りない分は既定の説明文で補い、余りは捨てます。
func fitPanels(scripts []PanelScript, n int) []PanelScript {
	out := make([]PanelScript, n)
	for i := range out {
		if i < len(scripts) {
			out[i] = scripts[i]
		}
		if out[i].Description == "" {
			out[i].Description = domain.DefaultDescription(i)
		}
	}
	return out
}
