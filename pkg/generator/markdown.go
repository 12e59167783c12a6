package generator

import (
	"log/slog"
	"regexp"
	"strings"
)

const (
	fieldKeySpeaker     = "speaker"
	fieldKeyText        = "text"
	fieldKeyAction      = "action"
	fieldKeyDescription = "description"
)

var (
	// markdownPanelRegex は "## Panel" で始まるパネル区切り行を特定します。
	markdownPanelRegex = regexp.MustCompile(`(?i)^##\s+Panel`)

	// fieldRegex は "- key: value" 形式のフィールド行をキャプチャします。
	fieldRegex = regexp.MustCompile(`^\s*-\s*([a-zA-Z_]+):\s*(.+)`)
)

// parseMarkdown は "## Panel" 見出しと "- key: value" フィールドで書かれた台本を解析します。
// action / description は場面説明に、text はセリフになります。直前の speaker があればセリフに名前を添えます。
func parseMarkdown(raw string) []PanelScript {
	var (
		scripts []PanelScript
		current *PanelScript
		speaker string
	)
	addPrevious := func() {
		if current != nil && hasContent(current) {
			scripts = append(scripts, *current)
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if markdownPanelRegex.MatchString(trimmed) {
			addPrevious()
			current = &PanelScript{}
			speaker = ""
			continue
		}
		if current == nil {
			continue
		}

		m := fieldRegex.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		key, val := strings.ToLower(m[1]), strings.TrimSpace(m[2])
		switch key {
		case fieldKeySpeaker:
			speaker = val
		case fieldKeyText:
			if speaker != "" {
				val = speaker + ": " + val
			}
			current.Dialogues = append(current.Dialogues, val)
		case fieldKeyAction, fieldKeyDescription:
			if current.Description != "" {
				val = current.Description + " " + val
			}
			current.Description = val
		default:
			slog.Debug("台本に未知のフィールドキーが見つかりました", "key", key)
		}
	}
	addPrevious()

	return scripts
}

// hasContent はパネルに有効な情報が含まれているか判定します。
func hasContent(s *PanelScript) bool {
	return s.Description != "" || len(s.Dialogues) > 0
}
