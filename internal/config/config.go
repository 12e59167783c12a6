package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-utils/envutil"

	"github.com/shouni/go-manga-studio/pkg/generator"
)

// デフォルト値の定義なのだ
const (
	DefaultTier              = "FREE"
	DefaultListenAddr        = ":8080"
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultRateInterval      = generator.DefaultRateInterval
	DefaultCharactersFile    = ""
	DefaultImagePromptSuffix = "Japanese anime style, official art, cel-shaded, clean line art, high-quality manga coloring, expressive eyes, vibrant colors, cinematic lighting, masterpiece, ultra-detailed"

	// BackendPlaceholder は外部 API を使わないプレースホルダーのバックエンドなのだ。
	BackendPlaceholder = "placeholder"
	// BackendGemini は Gemini で実際に生成するバックエンドなのだ。
	BackendGemini = "gemini"
)

// Config はアプリケーション全体の環境設定を保持する構造体なのだ。
type Config struct {
	// BackendURL が空のときはプロセス内のバックエンドを直接呼ぶのだ
	BackendURL     string
	Tier           string
	Model          string
	CatalogFile    string
	CharactersFile string
	ListenAddr     string
	HTTPTimeout    time.Duration
	RateInterval   time.Duration

	GeminiAPIKey      string
	GeminiModel       string
	GeminiImageModel  string
	ImagePromptSuffix string
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	return &Config{
		BackendURL:        envutil.GetEnv("MANGA_BACKEND_URL", ""),
		Tier:              envutil.GetEnv("MANGA_TIER", DefaultTier),
		Model:             envutil.GetEnv("MANGA_MODEL", ""),
		CatalogFile:       envutil.GetEnv("MANGA_CATALOG_FILE", ""),
		CharactersFile:    envutil.GetEnv("MANGA_CHARACTERS_FILE", DefaultCharactersFile),
		ListenAddr:        envutil.GetEnv("MANGA_LISTEN_ADDR", DefaultListenAddr),
		HTTPTimeout:       durationEnv("MANGA_HTTP_TIMEOUT", DefaultHTTPTimeout),
		RateInterval:      durationEnv("MANGA_RATE_INTERVAL", DefaultRateInterval),
		GeminiAPIKey:      envutil.GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:       envutil.GetEnv("GEMINI_MODEL", generator.DefaultTextModel),
		GeminiImageModel:  envutil.GetEnv("GEMINI_IMAGE_MODEL", generator.DefaultImageModel),
		ImagePromptSuffix: envutil.GetEnv("IMAGE_PROMPT_SUFFIX", DefaultImagePromptSuffix),
	}
}

// Remote はリモートのバックエンドを使う設定かを返すのだ。
func (c *Config) Remote() bool {
	return c.BackendURL != ""
}

// AssetURL はアセット参照をバックエンドの絶対 URL にするのだ。それ以外はそのまま返すのだ。
func (c *Config) AssetURL(ref string) string {
	if !c.Remote() || !strings.HasPrefix(ref, generator.AssetPathPrefix) {
		return ref
	}
	return strings.TrimSuffix(c.BackendURL, "/") + ref
}

// durationEnv は期間の環境変数を読むのだ。読めない値は警告してデフォルトに戻すのだ。
func durationEnv(key string, def time.Duration) time.Duration {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("期間の指定が不正なのでデフォルト値を使うのだ", "key", key, "value", raw, "default", def)
		return def
	}
	return d
}
