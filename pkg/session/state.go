package session

import "github.com/shouni/go-manga-studio/pkg/domain"

// Kind は SessionState のタグです。
type Kind int

const (
	KindIdle Kind = iota
	KindGenerating
	KindReady
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindGenerating:
		return "generating"
	case KindReady:
		return "ready"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State はセッションの状態を表すタグ付きバリアントです。
// このパッケージの Idle / Generating / Ready / Failed 以外は実装できません。
type State interface {
	Kind() Kind
	sessionState()
}

// Idle はまだ一度も生成していない状態です。
type Idle struct{}

// Generating はページ生成の応答待ちです。Previous は直前の Ready のパネルで、待機中も表示に使えます。
type Generating struct {
	Request  domain.GenerationRequest
	Round    uint64
	Previous domain.Panels
}

// Ready は生成済みのページを保持します。
type Ready struct {
	Panels domain.Panels
	Round  uint64
}

// Failed は直近の生成が失敗した状態です。Previous は失敗前に表示していたパネルです。
type Failed struct {
	Err      error
	Round    uint64
	Previous domain.Panels
}

func (Idle) Kind() Kind       { return KindIdle }
func (Generating) Kind() Kind { return KindGenerating }
func (Ready) Kind() Kind      { return KindReady }
func (Failed) Kind() Kind     { return KindFailed }

func (Idle) sessionState()       {}
func (Generating) sessionState() {}
func (Ready) sessionState()      {}
func (Failed) sessionState()     {}

// cloneState は呼び出し側に渡すための複製を作ります。
func cloneState(s State) State {
	switch st := s.(type) {
	case Generating:
		st.Previous = st.Previous.Clone()
		return st
	case Ready:
		st.Panels = st.Panels.Clone()
		return st
	case Failed:
		st.Previous = st.Previous.Clone()
		return st
	default:
		return s
	}
}

// visiblePanels は画面に出すべきパネルを返します。生成中や失敗時も直前のページを残します。
func visiblePanels(s State) domain.Panels {
	switch st := s.(type) {
	case Generating:
		return st.Previous
	case Ready:
		return st.Panels
	case Failed:
		return st.Previous
	default:
		return nil
	}
}
