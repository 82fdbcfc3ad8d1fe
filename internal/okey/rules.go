package okey

import "fmt"

// HandSize is the number of tiles a finished hand lays down.
const HandSize = 14

const minGroupSize = 3

// Clusters splits a rack-shaped sequence into maximal runs of occupied slots.
func Clusters(rack []*Tile) [][]*Tile {
	var clusters [][]*Tile
	var current []*Tile
	for _, t := range rack {
		if t != nil {
			current = append(current, t)
			continue
		}
		if len(current) > 0 {
			clusters = append(clusters, current)
			current = nil
		}
	}
	if len(current) > 0 {
		clusters = append(clusters, current)
	}
	return clusters
}

// ValidateHandGroups checks that the occupied slots form exactly 14 tiles
// arranged in clusters that are each a valid set or run.
func ValidateHandGroups(rack []*Tile) (bool, string) {
	clusters := Clusters(rack)

	total := 0
	for _, c := range clusters {
		total += len(c)
	}
	if total != HandSize {
		return false, fmt.Sprintf("COUNT_MISMATCH: You need exactly %d tiles to finish (currently used: %d)", HandSize, total)
	}

	for _, c := range clusters {
		if len(c) < minGroupSize {
			return false, "GROUP_TOO_SMALL: All groups must have at least 3 tiles"
		}
		if !IsSet(c) && !IsRun(c) {
			return false, "INVALID_GROUP: Found a group that is neither a valid set nor a run"
		}
	}

	return true, ""
}

func nonWild(tiles []*Tile) []*Tile {
	out := make([]*Tile, 0, len(tiles))
	for _, t := range tiles {
		if !t.IsWildcard {
			out = append(out, t)
		}
	}
	return out
}

// IsSet reports whether tiles share one value in pairwise distinct colors.
// Wildcards fill missing colors.
func IsSet(tiles []*Tile) bool {
	if len(tiles) > len(Colors) {
		return false
	}

	natural := nonWild(tiles)
	if len(natural) == 0 {
		return true
	}

	seen := make(map[Color]bool, len(natural))
	for _, t := range natural {
		if t.Value != natural[0].Value || seen[t.Color] {
			return false
		}
		seen[t.Color] = true
	}
	return true
}

// IsRun reports whether tiles are one color in consecutive ascending order,
// wildcards standing in by position. A 1 may close a run after 13.
func IsRun(tiles []*Tile) bool {
	natural := nonWild(tiles)
	if len(natural) == 0 {
		return true
	}

	hasOne := false
	for _, t := range natural {
		if t.Color != natural[0].Color {
			return false
		}
		if t.Value == MinValue {
			hasOne = true
		}
	}

	if isSequence(tiles, false) {
		return true
	}
	return hasOne && isSequence(tiles, true)
}

func isSequence(tiles []*Tile, aceHigh bool) bool {
	valueOf := func(t *Tile) int {
		if aceHigh && t.Value == MinValue {
			return MaxValue + 1
		}
		return t.Value
	}

	first := -1
	for i, t := range tiles {
		if !t.IsWildcard {
			first = i
			break
		}
	}
	firstValue := valueOf(tiles[first])

	for i := first + 1; i < len(tiles); i++ {
		if tiles[i].IsWildcard {
			continue
		}
		if valueOf(tiles[i]) != firstValue+(i-first) {
			return false
		}
	}

	upper := MaxValue
	if aceHigh {
		upper = MaxValue + 1
	}
	start := firstValue - first
	end := start + len(tiles) - 1
	return start >= MinValue && end <= upper
}

type face struct {
	value int
	color Color
}

// ValidatePairs checks the seven-pairs finish: 14 tiles forming pairs of
// identical value and color. A wildcard may complete a lone tile at most
// maxWildcards times; spare wildcards pair with each other.
func ValidatePairs(rack []*Tile, maxWildcards int) (bool, string) {
	counts := make(map[face]int)
	total, wilds := 0, 0
	for _, t := range rack {
		if t == nil {
			continue
		}
		total++
		if t.IsWildcard {
			wilds++
			continue
		}
		counts[face{t.Value, t.Color}]++
	}

	if total != HandSize {
		return false, fmt.Sprintf("COUNT_MISMATCH: You need exactly %d tiles for pairs (currently used: %d)", HandSize, total)
	}

	singles := 0
	for _, n := range counts {
		singles += n % 2
	}

	switch {
	case singles > wilds:
		return false, "NOT_PAIRS: Every tile needs an identical partner"
	case singles > maxWildcards:
		return false, fmt.Sprintf("TOO_MANY_WILDCARDS: At most %d wildcards may complete pairs", maxWildcards)
	case (wilds-singles)%2 != 0:
		return false, "NOT_PAIRS: Leftover wildcard has no partner"
	}
	return true, ""
}

// CalculatePenalty sums face values, counting wildcards as 20.
func CalculatePenalty(rack []*Tile) int {
	penalty := 0
	for _, t := range rack {
		if t == nil {
			continue
		}
		if t.IsWildcard {
			penalty += 20
		} else {
			penalty += t.Value
		}
	}
	return penalty
}
