package domain

import "fmt"

// Panel はページ内の1コマです。ID は生成時の位置 (0 始まり) で、以後変わりません。
type Panel struct {
	ID          int      `json:"id"`
	ImageRef    string   `json:"image_ref"`
	Description string   `json:"description"`
	Prompt      *string  `json:"prompt,omitempty"`
	Dialogues   []string `json:"dialogues"`
}

// Panels はページを構成するパネルの並びです。
type Panels []Panel

// Clone はプロンプトとセリフを含めて複製します。
func (p Panel) Clone() Panel {
	c := p
	if p.Prompt != nil {
		prompt := *p.Prompt
		c.Prompt = &prompt
	}
	c.Dialogues = make([]string, len(p.Dialogues))
	copy(c.Dialogues, p.Dialogues)
	return c
}

// PromptText はプロンプト未設定なら空文字を返します。
func (p Panel) PromptText() string {
	if p.Prompt == nil {
		return ""
	}
	return *p.Prompt
}

func (p Panel) String() string {
	return fmt.Sprintf("panel#%d (%s)", p.ID, p.ImageRef)
}

// Clone はページ全体を複製します。nil はそのまま nil を返します。
func (ps Panels) Clone() Panels {
	if ps == nil {
		return nil
	}
	out := make(Panels, len(ps))
	for i, p := range ps {
		out[i] = p.Clone()
	}
	return out
}

// IDs はパネル ID を並び順に返します。
func (ps Panels) IDs() []int {
	ids := make([]int, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

// DefaultDescription はバックエンドが説明文を返さなかった場合の説明文です。
func DefaultDescription(index int) string {
	return fmt.Sprintf("Panel %d: Generated from narrative", index+1)
}

// StringPtr は文字列のポインタを返します。
func StringPtr(s string) *string {
	return &s
}

// PanelUpdated は再生成が完了したパネル1件分の差分イベントです。
// 再生成側はこのイベントを発行するだけで、反映はパネル集合を所有するセッションが行います。
type PanelUpdated struct {
	SessionID string
	Round     uint64
	Attempt   uint64
	PanelID   int
	ImageRef  string
	Prompt    string
}
