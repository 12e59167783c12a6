package remote

import (
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/shouni/go-manga-studio/pkg/domain"
)

const (
	// DefaultCatalogTTL はモデル一覧のキャッシュ有効期間です。
	DefaultCatalogTTL      = 5 * time.Minute
	catalogCleanupInterval = 15 * time.Minute
)

// CachedCatalog はティアごとのモデル一覧をキャッシュする Service です。
// 生成と再生成はそのまま内側の Service に渡します。
type CachedCatalog struct {
	Service
	cache *cache.Cache
	group singleflight.Group
}

// NewCachedCatalog は svc の ListModels を ttl の間キャッシュします。
func NewCachedCatalog(svc Service, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &CachedCatalog{
		Service: svc,
		cache:   cache.New(ttl, catalogCleanupInterval),
	}
}

// ListModels はキャッシュ済みの一覧を返します。同時に発生したミスは1回の呼び出しにまとめます。
func (c *CachedCatalog) ListModels(ctx context.Context, t domain.Tier) ([]domain.ModelDescriptor, error) {
	key := t.String()
	if cached, found := c.cache.Get(key); found {
		if models, ok := cached.([]domain.ModelDescriptor); ok {
			return slices.Clone(models), nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		models, err := c.Service.ListModels(ctx, t)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, models, cache.DefaultExpiration)
		return models, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]domain.ModelDescriptor)), nil
}

// Invalidate はキャッシュを破棄します。
func (c *CachedCatalog) Invalidate() {
	c.cache.Flush()
}
