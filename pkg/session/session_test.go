package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeGenerator は応答をテスト側から制御できる PageGenerator なのだ。
type fakeGenerator struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
	ignore  bool // true のとき ctx を無視して release まで待つ
}

func (f *fakeGenerator) Generate(ctx context.Context, call remote.GenerateCall) ([]domain.Panel, error) {
	f.calls.Add(1)
	if f.release != nil {
		if f.ignore {
			<-f.release
		} else {
			select {
			case <-f.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	panels := make([]domain.Panel, call.Request.PanelCount)
	for i := range panels {
		panels[i] = domain.Panel{
			ID:          100 + i, // バックエンドの ID は信用しないのだ
			ImageRef:    fmt.Sprintf("img-%d-%d", call.Round, i),
			Prompt:      domain.StringPtr("backend prompt"),
			Dialogues:   []string{"noise"},
			Description: "",
		}
	}
	return panels, nil
}

var basicEntitlement = Entitlement{
	Tier: domain.TierBasic,
	Allowed: []domain.ModelDescriptor{
		{ID: "a", MinTier: domain.TierFree},
		{ID: "b", MinTier: domain.TierBasic},
	},
}

func heroRequest() domain.GenerationRequest {
	return domain.GenerationRequest{Narrative: "hero story", PanelCount: 4, ModelID: "b"}
}

func newSession(t *testing.T, gen remote.PageGenerator, opts ...Option) *Session {
	t.Helper()
	s, err := New(gen, opts...)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresGenerator(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestSubmit_HeroScenario(t *testing.T) {
	gen := &fakeGenerator{}
	s := newSession(t, gen)
	assert.Equal(t, KindIdle, s.State().Kind())

	panels, err := s.Submit(context.Background(), heroRequest(), basicEntitlement)
	require.NoError(t, err)

	require.Len(t, panels, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, panels.IDs())
	for i, p := range panels {
		assert.Nil(t, p.Prompt, "panel %d", i)
		assert.Empty(t, p.Dialogues)
		assert.NotNil(t, p.Dialogues)
		assert.Equal(t, domain.DefaultDescription(i), p.Description)
	}

	ready, ok := s.State().(Ready)
	require.True(t, ok)
	assert.Equal(t, uint64(1), ready.Round)
	assert.Equal(t, "b", s.LastModelID())
	assert.Equal(t, int32(1), gen.calls.Load(), "送信1回につきリモート呼び出しは1回なのだ")
}

func TestBegin_Validation(t *testing.T) {
	cases := map[string]domain.GenerationRequest{
		"空白のみのストーリー": {Narrative: "   ", PanelCount: 4, ModelID: "b"},
		"パネル数0":      {Narrative: "x", PanelCount: 0, ModelID: "b"},
		"パネル数13":     {Narrative: "x", PanelCount: 13, ModelID: "b"},
		"許可されないモデル":  {Narrative: "x", PanelCount: 2, ModelID: "c"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			gen := &fakeGenerator{}
			s := newSession(t, gen)

			_, err := s.Submit(context.Background(), req, basicEntitlement)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, KindIdle, s.State().Kind(), "状態は Idle のままなのだ")
			assert.Zero(t, s.Round())
			assert.Zero(t, gen.calls.Load(), "I/O は発生しないのだ")
		})
	}
}

func TestSubmit_BusyWhileGenerating(t *testing.T) {
	defer goleak.VerifyNone(t)

	gen := &fakeGenerator{release: make(chan struct{})}
	s := newSession(t, gen)

	first := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), heroRequest(), basicEntitlement)
		first <- err
	}()

	require.Eventually(t, func() bool { return s.State().Kind() == KindGenerating }, time.Second, time.Millisecond)

	other := domain.GenerationRequest{Narrative: "another", PanelCount: 2, ModelID: "a"}
	_, err := s.Submit(context.Background(), other, basicEntitlement)
	assert.ErrorIs(t, err, domain.ErrBusy)

	g, ok := s.State().(Generating)
	require.True(t, ok)
	assert.Equal(t, heroRequest(), g.Request, "進行中のリクエストは変わらないのだ")

	close(gen.release)
	require.NoError(t, <-first)
	assert.Equal(t, KindReady, s.State().Kind())
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestSubmit_FailureAndRetry(t *testing.T) {
	cause := errors.New("backend exploded")
	gen := &fakeGenerator{err: cause}
	s := newSession(t, gen)

	_, err := s.Submit(context.Background(), heroRequest(), basicEntitlement)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.ErrorIs(t, err, cause)

	failed, ok := s.State().(Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, cause)

	gen.err = nil
	panels, err := s.Submit(context.Background(), heroRequest(), basicEntitlement)
	require.NoError(t, err, "Failed からの再送信は常に許可されるのだ")
	assert.Len(t, panels, 4)
	assert.Equal(t, uint64(2), s.Round())
}

func TestSubmit_MisaddressedEchoFailsRound(t *testing.T) {
	echo := domain.Stale("generate", "応答は別のラウンド宛てなのだ")
	gen := &fakeGenerator{err: echo}
	s := newSession(t, gen)

	_, err := s.Submit(context.Background(), heroRequest(), basicEntitlement)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration, "宛先違いの応答はバックエンドの失敗なのだ")
	assert.ErrorIs(t, err, domain.ErrStale)

	failed, ok := s.State().(Failed)
	require.True(t, ok, "Generating のまま残らないのだ")
	assert.Equal(t, uint64(1), failed.Round)

	gen.err = nil
	_, err = s.Submit(context.Background(), heroRequest(), basicEntitlement)
	require.NoError(t, err)
}

func TestSubmit_PreviousPanelsVisibleWhileGenerating(t *testing.T) {
	defer goleak.VerifyNone(t)

	gen := &fakeGenerator{}
	s := newSession(t, gen)
	_, err := s.Submit(context.Background(), heroRequest(), basicEntitlement)
	require.NoError(t, err)
	before := s.Panels()

	gen.release = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), domain.GenerationRequest{Narrative: "sequel", PanelCount: 2, ModelID: "a"}, basicEntitlement)
		done <- err
	}()
	require.Eventually(t, func() bool { return s.State().Kind() == KindGenerating }, time.Second, time.Millisecond)

	assert.Equal(t, before, s.Panels(), "生成中も直前のページが見えるのだ")
	g := s.State().(Generating)
	assert.Equal(t, before, g.Previous)

	close(gen.release)
	require.NoError(t, <-done)
	assert.Len(t, s.Panels(), 2, "成功したときだけ古いページを捨てるのだ")
}

func TestSubmit_TimeoutDiscardsLateResponse(t *testing.T) {
	defer goleak.VerifyNone(t)

	var stale atomic.Int32
	gen := &fakeGenerator{release: make(chan struct{}), ignore: true}
	s := newSession(t, gen, WithStaleHandler(func(error) { stale.Add(1) }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Submit(ctx, heroRequest(), basicEntitlement)
	require.ErrorIs(t, err, domain.ErrTimeout)
	failed, ok := s.State().(Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, domain.ErrTimeout)

	// 遅れて届いた応答は破棄され、状態は変わらないのだ
	close(gen.release)
	require.Eventually(t, func() bool { return stale.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, KindFailed, s.State().Kind())
}

func TestSucceed_StaleTicket(t *testing.T) {
	s := newSession(t, &fakeGenerator{})

	old, err := s.Begin(heroRequest(), basicEntitlement)
	require.NoError(t, err)
	require.NoError(t, s.Fail(old, domain.Timeout("generate", context.DeadlineExceeded)))

	current, err := s.Begin(domain.GenerationRequest{Narrative: "retry", PanelCount: 2, ModelID: "a"}, basicEntitlement)
	require.NoError(t, err)

	before := s.State()
	_, err = s.Succeed(old, make([]domain.Panel, 4))
	assert.ErrorIs(t, err, domain.ErrStale)
	assert.ErrorIs(t, s.Fail(old, errors.New("late")), domain.ErrStale)
	assert.Equal(t, before, s.State(), "古い応答では状態が変わらないのだ")

	panels, err := s.Succeed(current, make([]domain.Panel, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, panels.IDs())
}

func TestSucceed_PanelCountMismatch(t *testing.T) {
	s := newSession(t, &fakeGenerator{})
	tk, err := s.Begin(heroRequest(), basicEntitlement)
	require.NoError(t, err)

	_, err = s.Succeed(tk, make([]domain.Panel, 3))
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Equal(t, KindFailed, s.State().Kind())
}

func TestApplyPanelUpdate(t *testing.T) {
	s := newSession(t, &fakeGenerator{})
	_, err := s.Submit(context.Background(), heroRequest(), basicEntitlement)
	require.NoError(t, err)
	before := s.Panels()

	round, p, err := s.ReadyPanel(2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.ID)

	err = s.ApplyPanelUpdate(domain.PanelUpdated{
		SessionID: s.ID().String(), Round: round, PanelID: 2, ImageRef: "new-img", Prompt: "darker tone",
	})
	require.NoError(t, err)

	after := s.Panels()
	require.Len(t, after, 4)
	assert.Equal(t, "darker tone", after[2].PromptText())
	assert.Equal(t, "new-img", after[2].ImageRef)
	assert.Equal(t, 2, after[2].ID)
	for _, i := range []int{0, 1, 3} {
		assert.Equal(t, before[i], after[i], "panel %d は変わらないのだ", i)
	}

	t.Run("別ラウンドのイベントは破棄", func(t *testing.T) {
		err := s.ApplyPanelUpdate(domain.PanelUpdated{SessionID: s.ID().String(), Round: round + 1, PanelID: 1, ImageRef: "x"})
		assert.ErrorIs(t, err, domain.ErrStale)
		assert.Equal(t, after, s.Panels())
	})

	t.Run("範囲外のパネル", func(t *testing.T) {
		err := s.ApplyPanelUpdate(domain.PanelUpdated{SessionID: s.ID().String(), Round: round, PanelID: 4})
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, _, err = s.ReadyPanel(-1)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestReadyPanel_NotReady(t *testing.T) {
	s := newSession(t, &fakeGenerator{})
	_, _, err := s.ReadyPanel(0)
	assert.ErrorIs(t, err, domain.ErrConflict)
}
