package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	cases := map[string]Tier{
		"FREE":       TierFree,
		"basic":      TierBasic,
		" Pro ":      TierPro,
		"enterprise": TierEnterprise,
	}
	for in, want := range cases {
		got, err := ParseTier(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseTier("platinum")
	assert.Error(t, err)
}

func TestTier_Order(t *testing.T) {
	tiers := AllTiers()
	for i := 1; i < len(tiers); i++ {
		assert.Less(t, tiers[i-1].Rank(), tiers[i].Rank())
	}
	assert.False(t, Tier(7).Valid())
	assert.Equal(t, "Tier(7)", Tier(7).String())
}

func TestTier_JSON(t *testing.T) {
	m := ModelDescriptor{ID: "b", DisplayName: "Anime Pro v2", MinTier: TierBasic}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"b","display_name":"Anime Pro v2","min_tier":"BASIC"}`, string(data))

	var decoded ModelDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c","min_tier":"pro"}`), &decoded))
	assert.Equal(t, TierPro, decoded.MinTier)

	assert.Error(t, json.Unmarshal([]byte(`{"id":"c","min_tier":"gold"}`), &decoded))
}

func TestModelDescriptor_UsableBy(t *testing.T) {
	pro := ModelDescriptor{ID: "c", MinTier: TierPro}
	assert.False(t, pro.UsableBy(TierBasic))
	assert.True(t, pro.UsableBy(TierPro))
	assert.True(t, pro.UsableBy(TierEnterprise))
}
