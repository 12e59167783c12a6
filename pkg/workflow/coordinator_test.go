package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/remote"
	"github.com/shouni/go-manga-studio/pkg/tier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

var testModels = []domain.ModelDescriptor{
	{ID: "a", DisplayName: "A", MinTier: domain.TierFree},
	{ID: "b", DisplayName: "B", MinTier: domain.TierBasic},
	{ID: "c", DisplayName: "C", MinTier: domain.TierPro},
}

// fakeService は呼び出し回数を数え、必要なら応答を止める Service なのだ。
type fakeService struct {
	mu         sync.Mutex
	listCalls  atomic.Int32
	genCalls   atomic.Int32
	regenCalls atomic.Int32
	genGate    chan struct{}
	regenGates map[int]chan struct{}
	regenErr   error
}

func newFakeService() *fakeService {
	return &fakeService{regenGates: map[int]chan struct{}{}}
}

func (f *fakeService) holdPanel(id int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.regenGates[id] = ch
	return ch
}

func (f *fakeService) ListModels(_ context.Context, _ domain.Tier) ([]domain.ModelDescriptor, error) {
	f.listCalls.Add(1)
	return append([]domain.ModelDescriptor(nil), testModels...), nil
}

func (f *fakeService) Generate(ctx context.Context, call remote.GenerateCall) ([]domain.Panel, error) {
	f.genCalls.Add(1)
	f.mu.Lock()
	gate := f.genGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	panels := make([]domain.Panel, call.Request.PanelCount)
	for i := range panels {
		panels[i] = domain.Panel{ImageRef: fmt.Sprintf("page-%d-%d", call.Round, i)}
	}
	return panels, nil
}

func (f *fakeService) RegeneratePanel(ctx context.Context, call remote.RegenerateCall) (remote.RegenerateResult, error) {
	f.regenCalls.Add(1)
	f.mu.Lock()
	gate := f.regenGates[call.PanelID]
	err := f.regenErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return remote.RegenerateResult{}, ctx.Err()
		}
	}
	if err != nil {
		return remote.RegenerateResult{}, err
	}
	return remote.RegenerateResult{PanelID: call.PanelID, ImageRef: fmt.Sprintf("regen-%d", call.PanelID), Prompt: call.Prompt}, nil
}

func newCoordinator(t *testing.T, svc remote.Service, tr domain.Tier) *Coordinator {
	t.Helper()
	c, err := New(context.Background(), Args{Service: svc, Tier: tr, Config: DefaultConfig()})
	require.NoError(t, err)
	return c
}

func heroRequest() domain.GenerationRequest {
	return domain.GenerationRequest{Narrative: "hero story", PanelCount: 4, ModelID: "b"}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Args{Tier: domain.TierFree})
	assert.Error(t, err)

	_, err = New(context.Background(), Args{Service: newFakeService(), Tier: domain.Tier(9)})
	assert.Error(t, err)
}

func TestCoordinator_AllowedModelsFromBackend(t *testing.T) {
	svc := newFakeService()
	c := newCoordinator(t, svc, domain.TierBasic)

	assert.Equal(t, []string{"a", "b"}, tier.Catalog(c.AllowedModels()).IDs())
	def, ok := c.DefaultModel()
	require.True(t, ok)
	assert.Equal(t, "a", def.ID)
	assert.Equal(t, int32(1), svc.listCalls.Load())
}

func TestCoordinator_StaticCatalog(t *testing.T) {
	svc := newFakeService()
	catalog, err := tier.NewCatalog(testModels...)
	require.NoError(t, err)

	c, err := New(context.Background(), Args{Service: svc, Tier: domain.TierPro, Catalog: catalog})
	require.NoError(t, err)
	assert.Len(t, c.AllowedModels(), 3)

	require.NoError(t, c.SetTier(context.Background(), domain.TierFree))
	assert.Equal(t, []string{"a"}, tier.Catalog(c.AllowedModels()).IDs())
	assert.Zero(t, svc.listCalls.Load(), "静的カタログではバックエンドに問い合わせないのだ")
}

func TestCoordinator_SubmitThenRegenerate(t *testing.T) {
	svc := newFakeService()
	c := newCoordinator(t, svc, domain.TierBasic)

	panels, err := c.Submit(context.Background(), heroRequest())
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, panels.IDs())

	p, err := c.Regenerate(context.Background(), 2, "darker tone")
	require.NoError(t, err)
	assert.Equal(t, "darker tone", p.PromptText())

	snap := c.Snapshot()
	assert.Equal(t, "ready", snap.State)
	assert.Equal(t, "darker tone", snap.Panels[2].PromptText())
	assert.Equal(t, "regen-2", snap.Panels[2].ImageRef)
	for _, i := range []int{0, 1, 3} {
		assert.Equal(t, panels[i], snap.Panels[i])
	}
	assert.Empty(t, snap.PanelStates, "全パネルが Stable なのだ")
	assert.Equal(t, "a", snap.DefaultModel)
}

func TestCoordinator_RegenerateRequiresReady(t *testing.T) {
	svc := newFakeService()
	c := newCoordinator(t, svc, domain.TierBasic)

	_, err := c.Regenerate(context.Background(), 0, "x")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.True(t, IsLocal(err))
	assert.Zero(t, svc.regenCalls.Load())
}

func TestCoordinator_RegenerateRefusedWhileGenerating(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newFakeService()
	c := newCoordinator(t, svc, domain.TierBasic)
	_, err := c.Submit(context.Background(), heroRequest())
	require.NoError(t, err)

	gate := make(chan struct{})
	svc.mu.Lock()
	svc.genGate = gate
	svc.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), heroRequest())
		done <- err
	}()
	require.Eventually(t, func() bool { return c.Snapshot().State == "generating" }, time.Second, time.Millisecond)

	_, err = c.Regenerate(context.Background(), 1, "x")
	assert.ErrorIs(t, err, domain.ErrConflict)

	close(gate)
	require.NoError(t, <-done)
}

func TestCoordinator_SubmitRefusedWhileRegenerating(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newFakeService()
	c := newCoordinator(t, svc, domain.TierBasic)
	_, err := c.Submit(context.Background(), heroRequest())
	require.NoError(t, err)

	gate := svc.holdPanel(1)
	done := make(chan error, 1)
	go func() {
		_, err := c.Regenerate(context.Background(), 1, "sharper")
		done <- err
	}()
	require.Eventually(t, func() bool { return c.Snapshot().PanelStates[1] == "regenerating" }, time.Second, time.Millisecond)

	_, err = c.Submit(context.Background(), heroRequest())
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "ready", c.Snapshot().State, "セッションの状態は変わらないのだ")
	assert.Equal(t, int32(1), svc.genCalls.Load())

	close(gate)
	require.NoError(t, <-done)

	_, err = c.Submit(context.Background(), heroRequest())
	require.NoError(t, err, "再生成が終われば送信できるのだ")
}

func TestCoordinator_ConcurrentRegenerations(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newFakeService()
	c := newCoordinator(t, svc, domain.TierBasic)
	_, err := c.Submit(context.Background(), domain.GenerationRequest{Narrative: "n", PanelCount: 6, ModelID: "a"})
	require.NoError(t, err)

	var eg errgroup.Group
	for id := range 6 {
		eg.Go(func() error {
			_, err := c.Regenerate(context.Background(), id, fmt.Sprintf("prompt-%d", id))
			return err
		})
	}
	require.NoError(t, eg.Wait())

	snap := c.Snapshot()
	for id, p := range snap.Panels {
		assert.Equal(t, id, p.ID)
		assert.Equal(t, fmt.Sprintf("prompt-%d", id), p.PromptText())
	}
}

func TestCoordinator_RegenerationFailureInSnapshot(t *testing.T) {
	svc := newFakeService()
	c := newCoordinator(t, svc, domain.TierBasic)
	before, err := c.Submit(context.Background(), heroRequest())
	require.NoError(t, err)

	svc.regenErr = errors.New("quota")
	_, err = c.Regenerate(context.Background(), 3, "x")
	require.ErrorIs(t, err, domain.ErrGeneration)
	assert.False(t, IsLocal(err))

	snap := c.Snapshot()
	assert.Equal(t, "regen_failed", snap.PanelStates[3])
	assert.Contains(t, snap.PanelErrors[3], "quota")
	assert.Equal(t, before[3], snap.Panels[3], "直前の画像は残るのだ")
}

func TestCoordinator_TierChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newFakeService()
	c := newCoordinator(t, svc, domain.TierBasic)

	gate := make(chan struct{})
	svc.genGate = gate
	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), heroRequest())
		done <- err
	}()
	require.Eventually(t, func() bool { return c.Snapshot().State == "generating" }, time.Second, time.Millisecond)

	require.NoError(t, c.SetTier(context.Background(), domain.TierFree))
	assert.Equal(t, domain.TierFree, c.Tier())
	assert.Equal(t, []string{"a"}, tier.Catalog(c.AllowedModels()).IDs())

	// 進行中の生成はそのまま完了するのだ
	close(gate)
	require.NoError(t, <-done)

	_, err := c.Submit(context.Background(), heroRequest())
	assert.ErrorIs(t, err, domain.ErrValidation, "次の送信は新しいティアで検証されるのだ")
	assert.Equal(t, "ready", c.Snapshot().State)

	assert.ErrorIs(t, c.SetTier(context.Background(), domain.Tier(-1)), domain.ErrValidation)
}
