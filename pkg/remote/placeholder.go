package remote

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/tier"
)

// placeholderSize は仮画像の一辺のピクセル数です。
const placeholderSize = 240

// Placeholder は画像生成を行わず、決定的な仮画像の参照を返すバックエンドです。
// エディタの動作確認とテストに使います。
type Placeholder struct {
	catalog tier.Catalog
	latency time.Duration
}

var _ Service = (*Placeholder)(nil)

// NewPlaceholder は catalog を提供し、各生成呼び出しで latency だけ待つバックエンドを作成します。
func NewPlaceholder(catalog tier.Catalog, latency time.Duration) *Placeholder {
	if catalog == nil {
		catalog = tier.DefaultCatalog()
	}
	return &Placeholder{catalog: catalog, latency: latency}
}

func (p *Placeholder) ListModels(_ context.Context, t domain.Tier) ([]domain.ModelDescriptor, error) {
	return tier.AllowedModels(t, p.catalog), nil
}

func (p *Placeholder) Generate(ctx context.Context, call GenerateCall) ([]domain.Panel, error) {
	if err := p.sleep(ctx); err != nil {
		return nil, err
	}
	if _, ok := p.catalog.Lookup(call.Request.ModelID); !ok {
		return nil, fmt.Errorf("モデル %q はカタログにありません", call.Request.ModelID)
	}

	panels := make([]domain.Panel, call.Request.PanelCount)
	for i := range panels {
		panels[i] = domain.Panel{
			ID:          i,
			ImageRef:    placeholderRef(call.SessionID, call.Round, i, 0),
			Description: domain.DefaultDescription(i),
			Dialogues:   []string{},
		}
	}
	return panels, nil
}

func (p *Placeholder) RegeneratePanel(ctx context.Context, call RegenerateCall) (RegenerateResult, error) {
	if err := p.sleep(ctx); err != nil {
		return RegenerateResult{}, err
	}
	return RegenerateResult{
		PanelID:  call.PanelID,
		ImageRef: placeholderRef(call.SessionID, call.Round, call.PanelID, call.Attempt),
		Prompt:   call.Prompt,
	}, nil
}

func (p *Placeholder) sleep(ctx context.Context) error {
	if p.latency <= 0 {
		return nil
	}
	t := time.NewTimer(p.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func placeholderRef(sessionID string, round uint64, panelID int, attempt uint64) string {
	q := url.Values{}
	q.Set("session", sessionID)
	q.Set("round", strconv.FormatUint(round, 10))
	q.Set("panel", strconv.Itoa(panelID))
	if attempt > 0 {
		q.Set("attempt", strconv.FormatUint(attempt, 10))
	}
	return fmt.Sprintf("/api/placeholder/%d/%d?%s", placeholderSize, placeholderSize, q.Encode())
}
