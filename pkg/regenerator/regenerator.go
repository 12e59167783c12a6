// Package regenerator はパネル1枚単位の再生成ライフサイクルを管理します。
// パネル集合は持たず、結果は PanelUpdated イベントとして呼び出し側のストアに渡します。
package regenerator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/remote"
)

// Applier は再生成結果のイベントをパネル集合へ反映します。
type Applier func(ev domain.PanelUpdated) error

// Store はパネル集合の所有者です。session.Session が満たします。
type Store interface {
	ID() uuid.UUID
	ReadyPanel(id int) (uint64, domain.Panel, error)
	ApplyPanelUpdate(ev domain.PanelUpdated) error
}

// Attempt は Start が発行する1回分の再生成です。
type Attempt struct {
	SessionID string
	Round     uint64
	Number    uint64
	Prompt    string
	// Panel は開始時点のパネルで、失敗時に LastStable として残ります。
	Panel domain.Panel

	epoch uint64
}

// Regenerator はパネルごとの状態と試行番号だけを保持します。
type Regenerator struct {
	mu       sync.Mutex
	svc      remote.PanelService
	states   map[int]PanelState
	attempts map[int]uint64
	epoch    uint64
	logger   *slog.Logger
	onStale  func(err error)
}

// Option は Regenerator の設定を変更します。
type Option func(*Regenerator)

// WithLogger はロガーを差し替えます。
func WithLogger(l *slog.Logger) Option {
	return func(r *Regenerator) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStaleHandler は古い試行の応答を破棄したときに呼ばれる関数を設定します。
func WithStaleHandler(fn func(err error)) Option {
	return func(r *Regenerator) { r.onStale = fn }
}

// New は Regenerator を作成します。
func New(svc remote.PanelService, opts ...Option) (*Regenerator, error) {
	if svc == nil {
		return nil, fmt.Errorf("PanelService は必須です")
	}
	r := &Regenerator{
		svc:      svc,
		states:   make(map[int]PanelState),
		attempts: make(map[int]uint64),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// State はパネルの再生成状態を返します。記録が無いパネルは Stable です。
func (r *Regenerator) State(panelID int) PanelState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked(panelID)
}

func (r *Regenerator) stateLocked(panelID int) PanelState {
	st, ok := r.states[panelID]
	if !ok {
		return Stable{}
	}
	return clonePanelState(st)
}

// States は Stable 以外の状態を持つパネルの一覧を返します。
func (r *Regenerator) States() map[int]PanelState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]PanelState, len(r.states))
	for id, st := range r.states {
		out[id] = clonePanelState(st)
	}
	return out
}

// AnyRegenerating は再生成中のパネルがあるかを返します。
func (r *Regenerator) AnyRegenerating() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.states {
		if st.Kind() == KindRegenerating {
			return true
		}
	}
	return false
}

// Reset は新しい生成ラウンドに合わせて全パネルの状態を消します。進行中の試行の応答は破棄されます。
func (r *Regenerator) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	r.states = make(map[int]PanelState)
	r.attempts = make(map[int]uint64)
}

// Start はパネルを Regenerating に遷移させます。同じパネルが再生成中なら BusyError です。
func (r *Regenerator) Start(sessionID string, round uint64, panel domain.Panel, prompt string) (*Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(prompt) == "" {
		return nil, domain.Validation("regenerate", "プロンプトが空です").In(sessionID, round).OnPanel(panel.ID)
	}
	if st, ok := r.states[panel.ID].(Regenerating); ok {
		return nil, domain.Busy("regenerate", fmt.Sprintf("パネルは再生成中です (attempt=%d)", st.Attempt)).In(sessionID, round).OnPanel(panel.ID)
	}

	r.attempts[panel.ID]++
	n := r.attempts[panel.ID]
	r.states[panel.ID] = Regenerating{PendingPrompt: prompt, Attempt: n}

	r.logger.Info("パネルの再生成を開始します",
		"session_id", sessionID,
		"round", round,
		"panel_id", panel.ID,
		"attempt", n)

	return &Attempt{
		SessionID: sessionID,
		Round:     round,
		Number:    n,
		Prompt:    prompt,
		Panel:     panel.Clone(),
		epoch:     r.epoch,
	}, nil
}

// Await はリモートの再生成を1回だけ呼び出し、成功すれば apply にイベントを渡してから Stable に戻します。
// 失敗・タイムアウト・反映拒否はいずれも RegenFailed になり、直前の画像とプロンプトは残ります。
func (r *Regenerator) Await(ctx context.Context, a *Attempt, apply Applier) (domain.Panel, error) {
	call := remote.RegenerateCall{
		SessionID:   a.SessionID,
		Round:       a.Round,
		Attempt:     a.Number,
		PanelID:     a.Panel.ID,
		Prompt:      a.Prompt,
		Description: a.Panel.Description,
	}

	var (
		panel    domain.Panel
		panelErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := r.svc.RegeneratePanel(ctx, call)
		panel, panelErr = r.complete(a, res, err, apply)
	}()

	select {
	case <-done:
		return panel, panelErr
	case <-ctx.Done():
		cause := domain.Remote("regenerate", ctx.Err()).In(a.SessionID, a.Round).OnPanel(a.Panel.ID)
		if err := r.fail(a, cause); err != nil {
			<-done
			return panel, panelErr
		}
		return domain.Panel{}, cause
	}
}

// Regenerate は Ready なストアの1パネルを再生成します。
func (r *Regenerator) Regenerate(ctx context.Context, store Store, panelID int, prompt string) (domain.Panel, error) {
	round, p, err := store.ReadyPanel(panelID)
	if err != nil {
		return domain.Panel{}, err
	}
	a, err := r.Start(store.ID().String(), round, p, prompt)
	if err != nil {
		return domain.Panel{}, err
	}
	return r.Await(ctx, a, store.ApplyPanelUpdate)
}

func (r *Regenerator) complete(a *Attempt, res remote.RegenerateResult, err error, apply Applier) (domain.Panel, error) {
	if err != nil {
		cause := domain.Remote("regenerate", err).In(a.SessionID, a.Round).OnPanel(a.Panel.ID)
		if ferr := r.fail(a, cause); ferr != nil {
			return domain.Panel{}, ferr
		}
		return domain.Panel{}, cause
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if serr := r.currentLocked("complete", a); serr != nil {
		return domain.Panel{}, serr
	}
	if res.PanelID != a.Panel.ID {
		cause := domain.Generation("regenerate", fmt.Errorf("応答のパネル ID が一致しません (要求: %d, 応答: %d)", a.Panel.ID, res.PanelID)).
			In(a.SessionID, a.Round).OnPanel(a.Panel.ID)
		r.failLocked(a, cause)
		return domain.Panel{}, cause
	}

	prompt := res.Prompt
	if prompt == "" {
		prompt = a.Prompt
	}
	ev := domain.PanelUpdated{
		SessionID: a.SessionID,
		Round:     a.Round,
		Attempt:   a.Number,
		PanelID:   a.Panel.ID,
		ImageRef:  res.ImageRef,
		Prompt:    prompt,
	}
	if aerr := apply(ev); aerr != nil {
		r.failLocked(a, aerr)
		return domain.Panel{}, aerr
	}

	r.states[a.Panel.ID] = Stable{}
	r.logger.Info("パネルの再生成が完了しました",
		"session_id", a.SessionID,
		"panel_id", a.Panel.ID,
		"attempt", a.Number)

	updated := a.Panel.Clone()
	updated.ImageRef = ev.ImageRef
	updated.Prompt = domain.StringPtr(ev.Prompt)
	return updated, nil
}

// fail は試行がまだ有効なら RegenFailed に遷移します。古い試行は ErrStale です。
func (r *Regenerator) fail(a *Attempt, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.currentLocked("fail", a); err != nil {
		return err
	}
	r.failLocked(a, cause)
	return nil
}

func (r *Regenerator) failLocked(a *Attempt, cause error) {
	r.states[a.Panel.ID] = RegenFailed{Err: cause, LastStable: a.Panel.Clone()}
	r.logger.Warn("パネルの再生成に失敗しました",
		"session_id", a.SessionID,
		"panel_id", a.Panel.ID,
		"attempt", a.Number,
		"error", cause)
}

// currentLocked は試行がそのパネルの進行中の試行かを確認します。
func (r *Regenerator) currentLocked(op string, a *Attempt) error {
	st, ok := r.states[a.Panel.ID].(Regenerating)
	if ok && a.epoch == r.epoch && st.Attempt == a.Number {
		return nil
	}
	err := domain.Stale(op, fmt.Sprintf("パネルの状態は %s です", r.stateLocked(a.Panel.ID).Kind())).
		In(a.SessionID, a.Round).OnPanel(a.Panel.ID)
	r.logger.Debug("古い再生成の応答を破棄しました",
		"session_id", a.SessionID,
		"panel_id", a.Panel.ID,
		"attempt", a.Number)
	if r.onStale != nil {
		r.onStale(err)
	}
	return err
}
