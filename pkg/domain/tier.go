package domain

import (
	"fmt"
	"strings"
)

// Tier はサブスクリプションの階層です。値の大小がそのままランクの全順序になります。
type Tier int

const (
	TierFree Tier = iota
	TierBasic
	TierPro
	TierEnterprise
)

var tierNames = [...]string{
	TierFree:       "FREE",
	TierBasic:      "BASIC",
	TierPro:        "PRO",
	TierEnterprise: "ENTERPRISE",
}

// AllTiers はランクの昇順に並んだ全階層を返します。
func AllTiers() []Tier {
	return []Tier{TierFree, TierBasic, TierPro, TierEnterprise}
}

// Rank は比較に使う順位を返します。
func (t Tier) Rank() int {
	return int(t)
}

// Valid は定義済みの階層かどうかを判定します。
func (t Tier) Valid() bool {
	return t >= TierFree && t <= TierEnterprise
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier は "basic" や "PRO" のような文字列を Tier に変換します。大文字小文字は区別しません。
func ParseTier(s string) (Tier, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range tierNames {
		if n == name {
			return Tier(i), nil
		}
	}
	return TierFree, fmt.Errorf("不明なティアです: %q", s)
}

// MarshalText は JSON / YAML 上でティアを名前として表現します。
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("不正なティアです: %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
