package tier

import "github.com/shouni/go-manga-studio/pkg/domain"

// QualitySettings はティアごとの描画品質のヒントです。
type QualitySettings struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Steps    int     `json:"steps"`
	CFGScale float64 `json:"cfg_scale"`
}

var qualityByTier = map[domain.Tier]QualitySettings{
	domain.TierFree:       {Width: 512, Height: 512, Steps: 30, CFGScale: 7},
	domain.TierBasic:      {Width: 768, Height: 768, Steps: 40, CFGScale: 7.5},
	domain.TierPro:        {Width: 1024, Height: 1024, Steps: 50, CFGScale: 8},
	domain.TierEnterprise: {Width: 1536, Height: 1536, Steps: 60, CFGScale: 9},
}

// Quality はティアの品質設定を返します。不明なティアは FREE 相当です。
func Quality(t domain.Tier) QualitySettings {
	if q, ok := qualityByTier[t]; ok {
		return q
	}
	return qualityByTier[domain.TierFree]
}
