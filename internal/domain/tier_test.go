package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		mmr      int
		tier     Tier
		division Division
	}{
		{-50, TierUnranked, DivisionNone},
		{0, TierUnranked, DivisionNone},
		{799, TierUnranked, DivisionNone},
		{800, TierBronze, DivisionIV},
		{899, TierBronze, DivisionIV},
		{900, TierBronze, DivisionIII},
		{1000, TierBronze, DivisionII},
		{1199, TierBronze, DivisionI},
		{1200, TierSilver, DivisionIV},
		{1750, TierGold, DivisionIII},
		{3599, TierGrandmaster, DivisionI},
		{3600, TierLegend, DivisionNone},
		{9000, TierLegend, DivisionNone},
	}

	for _, tt := range tests {
		tier, division := TierFor(tt.mmr)
		assert.Equal(t, tt.tier, tier, "mmr %d", tt.mmr)
		assert.Equal(t, tt.division, division, "mmr %d", tt.mmr)
	}
}

func TestTiers_Ordered(t *testing.T) {
	tiers := Tiers()
	assert.Equal(t, TierUnranked, tiers[0])
	assert.Equal(t, TierLegend, tiers[len(tiers)-1])

	got, ok := ParseTier("GOLD")
	assert.True(t, ok)
	assert.Equal(t, TierGold, got)

	_, ok = ParseTier("gold")
	assert.False(t, ok)
}
