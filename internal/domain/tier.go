package domain

import "math"

// Tier is the coarse classification derived from MMR.
type Tier string

const (
	TierUnranked    Tier = "UNRANKED"
	TierBronze      Tier = "BRONZE"
	TierSilver      Tier = "SILVER"
	TierGold        Tier = "GOLD"
	TierPlatinum    Tier = "PLATINUM"
	TierDiamond     Tier = "DIAMOND"
	TierMaster      Tier = "MASTER"
	TierGrandmaster Tier = "GRANDMASTER"
	TierLegend      Tier = "LEGEND"
)

// Division is the fine classification inside a tier. IV is lowest.
type Division string

const (
	DivisionNone Division = ""
	DivisionIV   Division = "IV"
	DivisionIII  Division = "III"
	DivisionII   Division = "II"
	DivisionI    Division = "I"
)

// tierBand is the MMR floor of a tier. Bands with divisions split evenly into four.
type tierBand struct {
	tier  Tier
	floor int
}

// tierTable is ordered by floor ascending. The band of each tier ends at the
// next floor; UNRANKED and LEGEND have no divisions.
var tierTable = []tierBand{
	{TierUnranked, math.MinInt},
	{TierBronze, 800},
	{TierSilver, 1200},
	{TierGold, 1600},
	{TierPlatinum, 2000},
	{TierDiamond, 2400},
	{TierMaster, 2800},
	{TierGrandmaster, 3200},
	{TierLegend, 3600},
}

var divisions = [4]Division{DivisionIV, DivisionIII, DivisionII, DivisionI}

// TierFor maps MMR to a tier and division using tierTable.
func TierFor(mmr int) (Tier, Division) {
	idx := 0
	for i, band := range tierTable {
		if mmr >= band.floor {
			idx = i
		}
	}

	if idx == 0 || idx == len(tierTable)-1 {
		return tierTable[idx].tier, DivisionNone
	}

	floor := tierTable[idx].floor
	width := tierTable[idx+1].floor - floor
	step := width / len(divisions)
	d := (mmr - floor) / step
	if d >= len(divisions) {
		d = len(divisions) - 1
	}
	return tierTable[idx].tier, divisions[d]
}

// Tiers lists every tier from lowest to highest.
func Tiers() []Tier {
	out := make([]Tier, len(tierTable))
	for i, band := range tierTable {
		out[i] = band.tier
	}
	return out
}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, bool) {
	for _, band := range tierTable {
		if string(band.tier) == s {
			return band.tier, true
		}
	}
	return "", false
}
