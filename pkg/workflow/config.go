package workflow

import (
	"time"
)

// デフォルト値の定義なのだ
const (
	DefaultGenerateTimeout   = 5 * time.Minute
	DefaultRegenerateTimeout = 2 * time.Minute
)

// Config は Coordinator がリモート呼び出しごとに適用する期限です。0 は期限なしなのだ。
type Config struct {
	GenerateTimeout   time.Duration
	RegenerateTimeout time.Duration
}

// DefaultConfig は推奨されるデフォルト設定を返すヘルパー関数なのだ。
func DefaultConfig() Config {
	return Config{
		GenerateTimeout:   DefaultGenerateTimeout,
		RegenerateTimeout: DefaultRegenerateTimeout,
	}
}
