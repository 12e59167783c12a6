// Package session はナラティブからページ全体を生成するセッションの状態機械です。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/remote"
	"github.com/shouni/go-manga-studio/pkg/tier"
)

// Entitlement は送信時点のティアと、そのティアで許可されたモデル一覧です。
type Entitlement struct {
	Tier    domain.Tier
	Allowed []domain.ModelDescriptor
}

// Ticket は Begin が発行する生成ラウンドの識別子です。応答はこのチケットでのみ反映できます。
type Ticket struct {
	SessionID string
	Round     uint64
	Request   domain.GenerationRequest
	Tier      domain.Tier
}

// Session はパネル集合を所有し、ページ生成のライフサイクルを管理します。
type Session struct {
	mu        sync.Mutex
	id        uuid.UUID
	gen       remote.PageGenerator
	state     State
	round     uint64
	lastModel string
	logger    *slog.Logger
	onStale   func(err error)
}

// Option は Session の設定を変更します。
type Option func(*Session)

// WithID はセッション ID を固定します。
func WithID(id uuid.UUID) Option {
	return func(s *Session) { s.id = id }
}

// WithLogger はロガーを差し替えます。
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStaleHandler は古いラウンドの応答を破棄したときに呼ばれる関数を設定します。
func WithStaleHandler(fn func(err error)) Option {
	return func(s *Session) { s.onStale = fn }
}

// New は Idle 状態のセッションを作成します。
func New(gen remote.PageGenerator, opts ...Option) (*Session, error) {
	if gen == nil {
		return nil, fmt.Errorf("PageGenerator は必須です")
	}
	s := &Session{
		id:     uuid.New(),
		gen:    gen,
		state:  Idle{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", s.id.String())
	return s, nil
}

// ID はセッション ID を返します。
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State は現在の状態の複製を返します。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state)
}

// Round は最後に発行した生成ラウンドです。
func (s *Session) Round() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// LastModelID は最後に受理した送信のモデル ID です。
func (s *Session) LastModelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastModel
}

// Panels は表示すべきパネルの複製を返します。生成中・失敗時は直前のページです。
func (s *Session) Panels() domain.Panels {
	s.mu.Lock()
	defer s.mu.Unlock()
	return visiblePanels(s.state).Clone()
}

// Panel は表示中のパネルを ID で取得します。
func (s *Session) Panel(id int) (domain.Panel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	panels := visiblePanels(s.state)
	if id < 0 || id >= len(panels) {
		return domain.Panel{}, false
	}
	return panels[id].Clone(), true
}

// Begin は送信を検証し、Generating へ遷移してチケットを発行します。
// 検証エラーや Busy の場合は状態を変えません。
func (s *Session) Begin(req domain.GenerationRequest, ent Entitlement) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sid := s.id.String()
	if g, ok := s.state.(Generating); ok {
		return Ticket{}, domain.Busy("submit", "ページ生成が進行中です").In(sid, g.Round)
	}
	if err := req.Validate(); err != nil {
		return Ticket{}, inSession(err, sid, s.round)
	}
	if !tier.Contains(ent.Allowed, req.ModelID) {
		return Ticket{}, domain.Validationf("submit", "モデル %q はティア %s では利用できません", req.ModelID, ent.Tier).In(sid, s.round)
	}

	s.round++
	s.state = Generating{
		Request:  req,
		Round:    s.round,
		Previous: visiblePanels(s.state),
	}
	s.lastModel = req.ModelID

	s.logger.Info("ページ生成を開始します",
		"round", s.round,
		"model", req.ModelID,
		"panel_count", req.PanelCount,
		"tier", ent.Tier.String())

	return Ticket{SessionID: sid, Round: s.round, Request: req, Tier: ent.Tier}, nil
}

// Succeed は生成結果を反映して Ready へ遷移し、正規化したパネルを返します。
// 古いチケットは ErrStale で拒否し、状態は変えません。
// パネル数が要求と一致しない応答は生成失敗として扱います。
func (s *Session) Succeed(t Ticket, panels []domain.Panel) (domain.Panels, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.currentRound("succeed", t)
	if err != nil {
		return nil, err
	}

	if len(panels) != g.Request.PanelCount {
		cause := fmt.Errorf("パネル数が一致しません (要求: %d, 応答: %d)", g.Request.PanelCount, len(panels))
		ferr := domain.Generation("generate", cause).In(t.SessionID, t.Round)
		s.state = Failed{Err: ferr, Round: t.Round, Previous: g.Previous}
		s.logger.Warn("ページ生成の応答が不正です", "round", t.Round, "error", cause)
		return nil, ferr
	}

	// 台詞はバックエンドが返しても取り込まない
	page := make(domain.Panels, len(panels))
	for i, p := range panels {
		desc := strings.TrimSpace(p.Description)
		if desc == "" {
			desc = domain.DefaultDescription(i)
		}
		page[i] = domain.Panel{
			ID:          i,
			ImageRef:    p.ImageRef,
			Description: desc,
			Dialogues:   []string{},
		}
	}
	s.state = Ready{Panels: page, Round: t.Round}
	s.logger.Info("ページ生成が完了しました", "round", t.Round, "panels", len(page))

	return page.Clone(), nil
}

// Fail は生成失敗を反映して Failed へ遷移します。古いチケットは ErrStale です。
func (s *Session) Fail(t Ticket, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.currentRound("fail", t)
	if err != nil {
		return err
	}
	s.state = Failed{Err: cause, Round: t.Round, Previous: g.Previous}
	s.logger.Warn("ページ生成に失敗しました", "round", t.Round, "error", cause)
	return nil
}

// currentRound はチケットが進行中のラウンドを指しているか確認します。ロック保持中に呼びます。
func (s *Session) currentRound(op string, t Ticket) (Generating, error) {
	g, ok := s.state.(Generating)
	if !ok || t.SessionID != s.id.String() || g.Round != t.Round {
		err := domain.Stale(op, fmt.Sprintf("現在の状態は %s (round=%d) です", s.state.Kind(), s.round)).In(t.SessionID, t.Round)
		s.logger.Debug("古いラウンドの応答を破棄しました", "round", t.Round, "current_round", s.round)
		if s.onStale != nil {
			s.onStale(err)
		}
		return Generating{}, err
	}
	return g, nil
}

// Submit はページ生成を送信し、応答を待って反映します。
// リモート呼び出しはこのメソッドからのみ、送信1回につき1回だけ行われます。
// ctx の期限切れは TimeoutError として Failed に遷移し、遅れて届いた応答は破棄されます。
func (s *Session) Submit(ctx context.Context, req domain.GenerationRequest, ent Entitlement) (domain.Panels, error) {
	t, err := s.Begin(req, ent)
	if err != nil {
		return nil, err
	}
	return s.Await(ctx, t)
}

// Await は Begin で発行したチケットのページ生成を呼び出し、結果を反映します。
func (s *Session) Await(ctx context.Context, t Ticket) (domain.Panels, error) {
	call := remote.GenerateCall{
		SessionID: t.SessionID,
		Round:     t.Round,
		Tier:      t.Tier,
		Request:   t.Request,
		Quality:   tier.Quality(t.Tier),
	}

	var (
		page    domain.Panels
		pageErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		panels, err := s.gen.Generate(ctx, call)
		page, pageErr = s.complete(t, panels, err)
	}()

	select {
	case <-done:
		return page, pageErr
	case <-ctx.Done():
		cause := domain.Remote("generate", ctx.Err()).In(t.SessionID, t.Round)
		if err := s.Fail(t, cause); err != nil {
			// 応答の反映が先に完了していたので、その結果を返します
			<-done
			return page, pageErr
		}
		return nil, cause
	}
}

// complete はバックエンドの結果を反映します。宛先違いの応答 (ErrStale) もここではバックエンドの失敗です。
func (s *Session) complete(t Ticket, panels []domain.Panel, err error) (domain.Panels, error) {
	if err != nil {
		cause := domain.Remote("generate", err).In(t.SessionID, t.Round)
		if ferr := s.Fail(t, cause); ferr != nil {
			return nil, ferr
		}
		return nil, cause
	}
	return s.Succeed(t, panels)
}

// ReadyPanel は再生成の前提条件 (Ready であること) を確認し、対象パネルの複製を返します。
func (s *Session) ReadyPanel(id int) (uint64, domain.Panel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sid := s.id.String()
	r, ok := s.state.(Ready)
	if !ok {
		return 0, domain.Panel{}, domain.Conflict("regenerate", fmt.Sprintf("セッションが %s 状態のため再生成できません", s.state.Kind())).In(sid, s.round).OnPanel(id)
	}
	if id < 0 || id >= len(r.Panels) {
		return 0, domain.Panel{}, domain.Validationf("regenerate", "パネル %d は存在しません", id).In(sid, r.Round).OnPanel(id)
	}
	return r.Round, r.Panels[id].Clone(), nil
}

// ApplyPanelUpdate は再生成イベントを1スロットだけに反映します。ID と集合の長さは変わりません。
func (s *Session) ApplyPanelUpdate(ev domain.PanelUpdated) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.state.(Ready)
	if !ok || ev.SessionID != s.id.String() || r.Round != ev.Round {
		err := domain.Stale("apply", fmt.Sprintf("現在の状態は %s (round=%d) です", s.state.Kind(), s.round)).In(ev.SessionID, ev.Round).OnPanel(ev.PanelID)
		if s.onStale != nil {
			s.onStale(err)
		}
		return err
	}
	if ev.PanelID < 0 || ev.PanelID >= len(r.Panels) {
		return domain.Validationf("apply", "パネル %d は存在しません", ev.PanelID).In(ev.SessionID, ev.Round).OnPanel(ev.PanelID)
	}

	// r は値のコピーですが Panels の配列は共有しているので、このスロットへの書き込みは状態に反映されます
	slot := &r.Panels[ev.PanelID]
	slot.ImageRef = ev.ImageRef
	slot.Prompt = domain.StringPtr(ev.Prompt)

	s.logger.Debug("パネルを更新しました", "panel_id", ev.PanelID, "attempt", ev.Attempt)
	return nil
}

func inSession(err error, sessionID string, round uint64) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.In(sessionID, round)
	}
	return err
}
