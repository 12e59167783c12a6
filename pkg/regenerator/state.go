package regenerator

import "github.com/shouni/go-manga-studio/pkg/domain"

// Kind は PanelState のタグです。
type Kind int

const (
	KindStable Kind = iota
	KindRegenerating
	KindRegenFailed
)

func (k Kind) String() string {
	switch k {
	case KindStable:
		return "stable"
	case KindRegenerating:
		return "regenerating"
	case KindRegenFailed:
		return "regen_failed"
	default:
		return "unknown"
	}
}

// PanelState はパネルごとの再生成状態です。セッションの状態とは独立しています。
type PanelState interface {
	Kind() Kind
	panelState()
}

// Stable は再生成中でも失敗後でもない状態です。
type Stable struct{}

// Regenerating は再生成の応答待ちです。
type Regenerating struct {
	PendingPrompt string
	Attempt       uint64
}

// RegenFailed は直近の再生成が失敗した状態です。LastStable は失敗前の画像とプロンプトを保持します。
type RegenFailed struct {
	Err        error
	LastStable domain.Panel
}

func (Stable) Kind() Kind       { return KindStable }
func (Regenerating) Kind() Kind { return KindRegenerating }
func (RegenFailed) Kind() Kind  { return KindRegenFailed }

func (Stable) panelState()       {}
func (Regenerating) panelState() {}
func (RegenFailed) panelState()  {}

func clonePanelState(s PanelState) PanelState {
	if f, ok := s.(RegenFailed); ok {
		f.LastStable = f.LastStable.Clone()
		return f
	}
	return s
}
