package okey_test

import (
	"okey-server/internal/okey"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tile(value int, color okey.Color) *okey.Tile {
	return &okey.Tile{ID: color.String() + "_" + string(rune('a'+value)), Value: value, Color: color}
}

func wild() *okey.Tile {
	return &okey.Tile{ID: "wild", Value: 9, Color: okey.Red, IsWildcard: true}
}

func TestIsRun(t *testing.T) {
	R, B := okey.Red, okey.Blue
	tests := []struct {
		name  string
		tiles []*okey.Tile
		valid bool
	}{
		{"low run", []*okey.Tile{tile(1, R), tile(2, R), tile(3, R)}, true},
		{"wraps past thirteen", []*okey.Tile{tile(12, R), tile(13, R), tile(1, R)}, true},
		{"long wrap", []*okey.Tile{tile(10, R), tile(11, R), tile(12, R), tile(13, R), tile(1, R)}, true},
		{"wildcard in the middle", []*okey.Tile{tile(4, R), wild(), tile(6, R)}, true},
		{"leading wildcard", []*okey.Tile{wild(), tile(5, R), tile(6, R)}, true},
		{"wildcard past one", []*okey.Tile{tile(13, R), tile(1, R), wild()}, false},
		{"wildcard before one", []*okey.Tile{wild(), tile(1, R), tile(2, R)}, false},
		{"mixed colors", []*okey.Tile{tile(1, R), tile(2, B), tile(3, R)}, false},
		{"gap", []*okey.Tile{tile(1, R), tile(3, R), tile(4, R)}, false},
		{"descending", []*okey.Tile{tile(3, R), tile(2, R), tile(1, R)}, false},
		{"does not wrap through one", []*okey.Tile{tile(13, R), tile(1, R), tile(2, R)}, false},
		{"all wildcards", []*okey.Tile{wild(), wild(), wild()}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, okey.IsRun(tc.tiles))
		})
	}
}

func TestIsSet(t *testing.T) {
	R, B, K, Y := okey.Red, okey.Blue, okey.Black, okey.Yellow
	tests := []struct {
		name  string
		tiles []*okey.Tile
		valid bool
	}{
		{"three colors", []*okey.Tile{tile(5, R), tile(5, K), tile(5, B)}, true},
		{"four colors", []*okey.Tile{tile(5, R), tile(5, K), tile(5, B), tile(5, Y)}, true},
		{"duplicate color", []*okey.Tile{tile(5, R), tile(5, R), tile(5, B)}, false},
		{"mixed values", []*okey.Tile{tile(5, R), tile(6, K), tile(5, B)}, false},
		{"wildcard fills a color", []*okey.Tile{tile(5, R), wild(), tile(5, B)}, true},
		{"too many tiles", []*okey.Tile{tile(5, R), tile(5, K), tile(5, B), tile(5, Y), wild()}, false},
		{"all wildcards", []*okey.Tile{wild(), wild(), wild()}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, okey.IsSet(tc.tiles))
		})
	}
}

// groupedRack lays out clusters of 3, 4, 4 and 3 tiles separated by gaps.
func groupedRack() okey.Rack {
	var rack okey.Rack
	copy(rack[0:], []*okey.Tile{tile(1, okey.Red), tile(2, okey.Red), tile(3, okey.Red)})
	copy(rack[4:], []*okey.Tile{tile(10, okey.Red), tile(10, okey.Blue), tile(10, okey.Black), tile(10, okey.Yellow)})
	copy(rack[9:], []*okey.Tile{tile(5, okey.Blue), tile(6, okey.Blue), tile(7, okey.Blue), tile(8, okey.Blue)})
	copy(rack[14:], []*okey.Tile{tile(12, okey.Yellow), tile(13, okey.Yellow), tile(1, okey.Yellow)})
	return rack
}

func TestValidateHandGroups(t *testing.T) {
	assert := assert.New(t)

	rack := groupedRack()
	ok, reason := okey.ValidateHandGroups(rack[:])
	assert.True(ok, reason)
	assert.Empty(reason)

	rack[16] = nil
	ok, reason = okey.ValidateHandGroups(rack[:])
	assert.False(ok)
	assert.True(strings.HasPrefix(reason, "COUNT_MISMATCH"), reason)
}

func TestValidateHandGroupsRejectsSmallGroup(t *testing.T) {
	rack := groupedRack()
	// Still 14 tiles, but the blue run is split into 1 + 3.
	rack[20], rack[10] = rack[10], nil

	ok, reason := okey.ValidateHandGroups(rack[:])
	assert.False(t, ok)
	assert.True(t, strings.HasPrefix(reason, "GROUP_TOO_SMALL"), reason)
}

func TestValidateHandGroupsRejectsMixedCluster(t *testing.T) {
	rack := groupedRack()
	rack[2] = tile(4, okey.Blue)

	ok, reason := okey.ValidateHandGroups(rack[:])
	assert.False(t, ok)
	assert.True(t, strings.HasPrefix(reason, "INVALID_GROUP"), reason)
}

func pairsRack(extra ...*okey.Tile) []*okey.Tile {
	rack := []*okey.Tile{
		tile(1, okey.Red), tile(1, okey.Red),
		tile(4, okey.Blue), tile(4, okey.Blue),
		tile(9, okey.Black), tile(9, okey.Black),
		tile(13, okey.Yellow), tile(13, okey.Yellow),
		tile(2, okey.Red), tile(2, okey.Red),
		nil,
		tile(6, okey.Blue), tile(6, okey.Blue),
	}
	return append(rack, extra...)
}

func TestValidatePairs(t *testing.T) {
	tests := []struct {
		name   string
		rack   []*okey.Tile
		limit  int
		valid  bool
		prefix string
	}{
		{"seven natural pairs", pairsRack(tile(8, okey.Black), tile(8, okey.Black)), 2, true, ""},
		{"wildcard completes a pair", pairsRack(tile(8, okey.Black), wild()), 2, true, ""},
		{"two wildcards pair together", pairsRack(wild(), wild()), 0, true, ""},
		{"unmatched tiles", pairsRack(tile(8, okey.Black), tile(8, okey.Red)), 2, false, "NOT_PAIRS"},
		{"substitution over the limit", pairsRack(tile(8, okey.Black), wild()), 0, false, "TOO_MANY_WILDCARDS"},
		{"thirteen tiles", pairsRack(tile(8, okey.Black)), 2, false, "COUNT_MISMATCH"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := okey.ValidatePairs(tc.rack, tc.limit)
			assert.Equal(t, tc.valid, ok, reason)
			assert.True(t, strings.HasPrefix(reason, tc.prefix), reason)
		})
	}
}

func TestCalculatePenalty(t *testing.T) {
	rack := []*okey.Tile{tile(3, okey.Red), nil, tile(10, okey.Blue), wild()}
	assert.Equal(t, 33, okey.CalculatePenalty(rack))
}
