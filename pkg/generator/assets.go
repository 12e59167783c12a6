package generator

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type asset struct {
	data     []byte
	mimeType string
}

// AssetStore は生成した画像を期限付きでメモリに保持し、/v1/assets/{id} の参照を払い出します。
type AssetStore struct {
	cache *cache.Cache
}

// NewAssetStore は ttl の間画像を保持する AssetStore を作成します。
func NewAssetStore(ttl time.Duration) *AssetStore {
	if ttl <= 0 {
		ttl = DefaultAssetTTL
	}
	return &AssetStore{cache: cache.New(ttl, assetCleanupInterval)}
}

// Put は画像を保存し、その参照を返します。
func (s *AssetStore) Put(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	id := uuid.NewString()
	s.cache.Set(id, asset{data: data, mimeType: mimeType}, cache.DefaultExpiration)
	return AssetPathPrefix + id
}

// Asset は ID から画像を取得します。参照 (/v1/assets/{id}) をそのまま渡しても構いません。
func (s *AssetStore) Asset(id string) ([]byte, string, bool) {
	v, found := s.cache.Get(strings.TrimPrefix(id, AssetPathPrefix))
	if !found {
		return nil, "", false
	}
	a, ok := v.(asset)
	if !ok {
		return nil, "", false
	}
	return a.data, a.mimeType, true
}

// Len は保持している画像の数です。
func (s *AssetStore) Len() int {
	return s.cache.ItemCount()
}
