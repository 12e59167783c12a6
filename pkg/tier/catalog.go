// Package tier はサブスクリプションのティアから利用可能な生成モデルを解決します。
package tier

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shouni/go-manga-studio/pkg/domain"

	"gopkg.in/yaml.v3"
)

var (
	ErrDuplicateModel = errors.New("duplicate model id")
	ErrEmptyModelID   = errors.New("empty model id")
	ErrInvalidTier    = errors.New("invalid min tier")
)

// Catalog は順序付きのモデル一覧です。ID の一意性は NewCatalog が保証します。
type Catalog []domain.ModelDescriptor

// NewCatalog は ID の重複や空 ID を拒否してカタログを作成します。
func NewCatalog(models ...domain.ModelDescriptor) (Catalog, error) {
	seen := make(map[string]struct{}, len(models))
	c := make(Catalog, 0, len(models))
	for i, m := range models {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return nil, fmt.Errorf("モデル %d: %w", i, ErrEmptyModelID)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("モデル %q: %w", id, ErrDuplicateModel)
		}
		if !m.MinTier.Valid() {
			return nil, fmt.Errorf("モデル %q: %w", id, ErrInvalidTier)
		}
		seen[id] = struct{}{}
		m.ID = id
		c = append(c, m)
	}
	return c, nil
}

// AllowedModels は minTier がティア以下のモデルをカタログ順のまま返します。
// 呼び出しごとに新しいスライスを返すので、ティア変更前の結果が残ることはありません。
func AllowedModels(t domain.Tier, c Catalog) []domain.ModelDescriptor {
	allowed := make([]domain.ModelDescriptor, 0, len(c))
	for _, m := range c {
		if m.UsableBy(t) {
			allowed = append(allowed, m)
		}
	}
	return allowed
}

// DefaultModel は最初の利用可能モデルを返します。該当なしの場合は false で、
// 呼び出し側は生成を無効化してください。
func DefaultModel(t domain.Tier, c Catalog) (domain.ModelDescriptor, bool) {
	for _, m := range c {
		if m.UsableBy(t) {
			return m, true
		}
	}
	return domain.ModelDescriptor{}, false
}

// IsAllowed は id のモデルがティアで利用可能かを返します。
func IsAllowed(t domain.Tier, c Catalog, id string) bool {
	m, ok := c.Lookup(id)
	return ok && m.UsableBy(t)
}

// Contains は許可済みモデル一覧に id が含まれるかを返します。
func Contains(models []domain.ModelDescriptor, id string) bool {
	for _, m := range models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Lookup は ID からモデルを検索します。
func (c Catalog) Lookup(id string) (domain.ModelDescriptor, bool) {
	for _, m := range c {
		if m.ID == id {
			return m, true
		}
	}
	return domain.ModelDescriptor{}, false
}

// IDs はカタログ順のモデル ID を返します。
func (c Catalog) IDs() []string {
	ids := make([]string, len(c))
	for i, m := range c {
		ids[i] = m.ID
	}
	return ids
}

// DefaultCatalog は組み込みの4モデルを返します。
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: "anime-v1", DisplayName: "Anime Basic", MinTier: domain.TierFree},
		{ID: "anime-v2", DisplayName: "Anime Pro v2", MinTier: domain.TierBasic},
		{ID: "manga-realistic", DisplayName: "Manga Realistic", MinTier: domain.TierPro},
		{ID: "custom-finetuned", DisplayName: "Custom Studio Style", MinTier: domain.TierEnterprise, Description: "Studio fine-tuned style"},
	}
}

type catalogFile struct {
	Models []domain.ModelDescriptor `yaml:"models"`
}

// ParseCatalog は YAML のカタログ定義を読み込みます。
func ParseCatalog(data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("カタログ YAML の解析に失敗しました: %w", err)
	}
	return NewCatalog(f.Models...)
}

// LoadCatalog はファイルからカタログを読み込みます。
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("カタログファイルの読み込みに失敗しました: %w", err)
	}
	return ParseCatalog(data)
}
