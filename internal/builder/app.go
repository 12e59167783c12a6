package builder

import (
	"fmt"

	"github.com/shouni/go-manga-studio/internal/config"
	"github.com/shouni/go-manga-studio/pkg/domain"
	"github.com/shouni/go-manga-studio/pkg/tier"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各Build関数に渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config     *config.Config       // Configは、環境変数とフラグから決まった設定です。
	Catalog    tier.Catalog         // Catalogは、カタログファイルから読んだモデル一覧です。未指定なら組み込みのカタログです。
	Characters domain.CharactersMap // Charactersは、パネルに一貫性を持たせるキャラクター定義です。
}

// NewAppContext は設定からカタログとキャラクター定義を読み込み、AppContext を生成する
func NewAppContext(cfg *config.Config) (*AppContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config は必須です")
	}

	catalog := tier.DefaultCatalog()
	if cfg.CatalogFile != "" {
		c, err := tier.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("カタログの読み込みに失敗しました: %w", err)
		}
		catalog = c
	}

	var chars domain.CharactersMap
	if cfg.CharactersFile != "" {
		c, err := domain.LoadCharacters(cfg.CharactersFile)
		if err != nil {
			return nil, fmt.Errorf("キャラクター情報の取得に失敗しました: %w", err)
		}
		chars = c
	}

	return &AppContext{
		Config:     cfg,
		Catalog:    catalog,
		Characters: chars,
	}, nil
}
