package generator

import "time"

const (
	// PanelAspectRatio は単体パネル（1コマ）の推奨アスペクト比です。
	PanelAspectRatio = "1:1"

	// DefaultRateInterval は画像生成 API を呼び出す最小間隔です。
	DefaultRateInterval = 2 * time.Second
	// DefaultAssetTTL は生成画像をメモリに保持する期間です。
	DefaultAssetTTL      = 1 * time.Hour
	assetCleanupInterval = 10 * time.Minute

	// AssetPathPrefix は画像参照のパスです。remote.PathAssets と対応します。
	AssetPathPrefix = "/v1/assets/"
)
