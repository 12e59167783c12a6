// Package workflow はティア・セッション・パネル再生成をまとめ、コンポーネント間の不変条件を守ります。
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/regenerator"
	"github.com/shouni/go-manga-studio/pkg/remote"
	"github.com/shouni/go-manga-studio/pkg/session"
	"github.com/shouni/go-manga-studio/pkg/tier"
)

// Coordinator は1つのセッションとその再生成を管理します。
// ページ生成の送信と再生成の開始は mu で直列化され、判定と遷移の間に割り込みはありません。
type Coordinator struct {
	mu      sync.Mutex
	tierMu  sync.Mutex
	svc     remote.Service
	tier    domain.Tier
	catalog tier.Catalog
	static  bool
	session *session.Session
	regen   *regenerator.Regenerator
	cfg     Config
	logger  *slog.Logger
}

// New は Coordinator を初期化します。Catalog が無い場合は初期ティアのモデル一覧をバックエンドから取得します。
func New(ctx context.Context, args Args) (*Coordinator, error) {
	if args.Service == nil {
		return nil, fmt.Errorf("Service は必須です")
	}
	if !args.Tier.Valid() {
		return nil, fmt.Errorf("ティアが不正です: %s", args.Tier)
	}

	logger := args.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sess, err := initializeSession(args.Session, args.Service, logger)
	if err != nil {
		return nil, err
	}
	regen, err := initializeRegenerator(args.Regenerator, args.Service, logger)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		svc:     args.Service,
		tier:    args.Tier,
		catalog: args.Catalog,
		static:  args.Catalog != nil,
		session: sess,
		regen:   regen,
		cfg:     args.Config,
		logger:  logger.With("session_id", sess.ID().String()),
	}

	if !c.static {
		catalog, err := c.fetchCatalog(ctx, args.Tier)
		if err != nil {
			return nil, err
		}
		c.catalog = catalog
	}

	c.logger.Info("ワークフローを初期化しました",
		"tier", c.tier.String(),
		"models", len(c.catalog),
		"static_catalog", c.static)
	return c, nil
}

// initializeSession は Session を初期化します。
// 引数として既存のセッションが渡された場合はそれを返し、nil の場合は新規作成します。
func initializeSession(s *session.Session, svc remote.Service, logger *slog.Logger) (*session.Session, error) {
	if s != nil {
		return s, nil
	}
	s, err := session.New(svc,
		session.WithLogger(logger),
		session.WithStaleHandler(func(error) { StaleDiscardedTotal.WithLabelValues("session").Inc() }))
	if err != nil {
		return nil, fmt.Errorf("セッションの初期化に失敗しました: %w", err)
	}
	return s, nil
}

// initializeRegenerator は Regenerator を初期化します。
// 引数として既存のものが渡された場合はそれを返し、nil の場合は新規作成します。
func initializeRegenerator(r *regenerator.Regenerator, svc remote.Service, logger *slog.Logger) (*regenerator.Regenerator, error) {
	if r != nil {
		return r, nil
	}
	r, err := regenerator.New(svc,
		regenerator.WithLogger(logger),
		regenerator.WithStaleHandler(func(error) { StaleDiscardedTotal.WithLabelValues("panel").Inc() }))
	if err != nil {
		return nil, fmt.Errorf("再生成エンジンの初期化に失敗しました: %w", err)
	}
	return r, nil
}

func (c *Coordinator) fetchCatalog(ctx context.Context, t domain.Tier) (tier.Catalog, error) {
	models, err := c.svc.ListModels(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("モデル一覧の取得に失敗しました (tier=%s): %w", t, err)
	}
	catalog, err := tier.NewCatalog(models...)
	if err != nil {
		return nil, fmt.Errorf("モデル一覧が不正です (tier=%s): %w", t, err)
	}
	return catalog, nil
}

// Session は管理しているセッションを返します。
func (c *Coordinator) Session() *session.Session {
	return c.session
}

// Tier は現在のティアです。
func (c *Coordinator) Tier() domain.Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tier
}

// AllowedModels は現在のティアで使えるモデルを毎回カタログから導出します。
func (c *Coordinator) AllowedModels() []domain.ModelDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tier.AllowedModels(c.tier, c.catalog)
}

// DefaultModel は現在のティアの既定モデルです。
func (c *Coordinator) DefaultModel() (domain.ModelDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tier.DefaultModel(c.tier, c.catalog)
}

// SetCatalog は静的カタログに差し替えます。以後 SetTier はバックエンドに問い合わせません。
func (c *Coordinator) SetCatalog(catalog tier.Catalog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = catalog
	c.static = true
	c.warnIfLastModelDisallowed()
}

// SetTier はティアを変更します。進行中の生成には影響せず、次の送信から新しい許可モデルで検証されます。
func (c *Coordinator) SetTier(ctx context.Context, t domain.Tier) error {
	if !t.Valid() {
		return domain.Validationf("set_tier", "ティアが不正です: %s", t)
	}

	c.tierMu.Lock()
	defer c.tierMu.Unlock()

	c.mu.Lock()
	static := c.static
	c.mu.Unlock()

	var catalog tier.Catalog
	if !static {
		var err error
		if catalog, err = c.fetchCatalog(ctx, t); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.tier
	c.tier = t
	if catalog != nil && !c.static {
		c.catalog = catalog
	}
	TierChangesTotal.Inc()
	c.logger.Info("ティアを変更しました", "from", prev.String(), "to", t.String())
	c.warnIfLastModelDisallowed()
	return nil
}

// warnIfLastModelDisallowed はロック保持中に呼びます。
func (c *Coordinator) warnIfLastModelDisallowed() {
	last := c.session.LastModelID()
	if last == "" || tier.IsAllowed(c.tier, c.catalog, last) {
		return
	}
	c.logger.Warn("前回のモデルは現在のティアでは利用できません。次の送信で再検証されます",
		"model", last,
		"tier", c.tier.String())
}

// Submit はページ全体の生成を送信します。再生成中のパネルがある間は ConflictError で拒否します。
func (c *Coordinator) Submit(ctx context.Context, req domain.GenerationRequest) (domain.Panels, error) {
	t, err := c.begin(req)
	if err != nil {
		SubmissionsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}

	if c.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.GenerateTimeout)
		defer cancel()
	}

	panels, err := c.session.Await(ctx, t)
	SubmissionsTotal.WithLabelValues(outcome(err)).Inc()
	return panels, err
}

func (c *Coordinator) begin(req domain.GenerationRequest) (session.Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ids := c.regeneratingPanels(); len(ids) > 0 {
		return session.Ticket{}, domain.Conflict("submit", fmt.Sprintf("パネル %v の再生成が完了していません", ids)).In(c.session.ID().String(), c.session.Round())
	}

	ent := session.Entitlement{Tier: c.tier, Allowed: tier.AllowedModels(c.tier, c.catalog)}
	t, err := c.session.Begin(req, ent)
	if err != nil {
		return session.Ticket{}, err
	}
	c.regen.Reset()
	return t, nil
}

// regeneratingPanels は再生成中のパネル ID を昇順で返します。
func (c *Coordinator) regeneratingPanels() []int {
	var ids []int
	for id, st := range c.regen.States() {
		if st.Kind() == regenerator.KindRegenerating {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Regenerate は1パネルを再生成します。セッションが Ready でなければ ConflictError です。
func (c *Coordinator) Regenerate(ctx context.Context, panelID int, prompt string) (domain.Panel, error) {
	a, err := c.startRegeneration(panelID, prompt)
	if err != nil {
		RegenerationsTotal.WithLabelValues(outcome(err)).Inc()
		return domain.Panel{}, err
	}

	RegenerationsInFlight.Inc()
	defer RegenerationsInFlight.Dec()

	if c.cfg.RegenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RegenerateTimeout)
		defer cancel()
	}

	p, err := c.regen.Await(ctx, a, c.session.ApplyPanelUpdate)
	RegenerationsTotal.WithLabelValues(outcome(err)).Inc()
	return p, err
}

func (c *Coordinator) startRegeneration(panelID int, prompt string) (*regenerator.Attempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	round, p, err := c.session.ReadyPanel(panelID)
	if err != nil {
		return nil, err
	}
	return c.regen.Start(c.session.ID().String(), round, p, prompt)
}

// Snapshot は描画用に現在の状態をまとめて返します。
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		SessionID:     c.session.ID().String(),
		Tier:          c.tier,
		Round:         c.session.Round(),
		Panels:        c.session.Panels(),
		AllowedModels: tier.AllowedModels(c.tier, c.catalog),
	}
	if m, ok := tier.DefaultModel(c.tier, c.catalog); ok {
		snap.DefaultModel = m.ID
	}

	st := c.session.State()
	snap.State = st.Kind().String()
	if f, ok := st.(session.Failed); ok && f.Err != nil {
		snap.Error = f.Err.Error()
	}

	for id, ps := range c.regen.States() {
		if ps.Kind() == regenerator.KindStable {
			continue
		}
		if snap.PanelStates == nil {
			snap.PanelStates = make(map[int]string)
		}
		snap.PanelStates[id] = ps.Kind().String()

		if failed, ok := ps.(regenerator.RegenFailed); ok && failed.Err != nil {
			if snap.PanelErrors == nil {
				snap.PanelErrors = make(map[int]string)
			}
			snap.PanelErrors[id] = failed.Err.Error()
		}
	}
	return snap
}

// IsLocal はコンポーネント内で検出したエラー (I/O を伴わない) かを判定します。
func IsLocal(err error) bool {
	return errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrBusy) || errors.Is(err, domain.ErrConflict)
}
