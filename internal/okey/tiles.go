package okey

import (
	"fmt"
	"math/rand"
)

type Color int

const (
	Red Color = iota
	Blue
	Black
	Yellow
)

var colorString = map[Color]string{
	Red:    "Red",
	Blue:   "Blue",
	Black:  "Black",
	Yellow: "Yellow",
}

func (c Color) String() string {
	return colorString[c]
}

var Colors = []Color{Red, Blue, Black, Yellow}

const (
	MinValue = 1
	MaxValue = 13

	// Tiles in a full set: two copies of 1..13 in four colors plus two fake okeys.
	TileCount = 2*4*MaxValue + 2
)

type Tile struct {
	ID         string `json:"id"`
	Value      int    `json:"value"`
	Color      Color  `json:"color"`
	IsFakeOkey bool   `json:"isFakeOkey"`
	IsWildcard bool   `json:"isWildcard"`
}

func (t Tile) String() string {
	if t.IsFakeOkey {
		return "[Fake Okey]"
	}
	s := fmt.Sprintf("[%s %d]", t.Color, t.Value)
	if t.IsWildcard {
		s += "*"
	}
	return s
}

// Matches reports whether t has the given face. Fake okeys never match a face.
func (t Tile) Matches(value int, color Color) bool {
	return !t.IsFakeOkey && t.Value == value && t.Color == color
}

// OkeyFor returns the wildcard face implied by an indicator tile.
func OkeyFor(indicator Tile) (int, Color) {
	if indicator.Value == MaxValue {
		return MinValue, indicator.Color
	}
	return indicator.Value + 1, indicator.Color
}

type Deck struct {
	Tiles []*Tile `json:"tiles"`
	rng   *rand.Rand
}

// NewDeck builds the full, unshuffled tile set.
func NewDeck(rng *rand.Rand) *Deck {
	tiles := make([]*Tile, 0, TileCount)
	id := 1
	for range 2 {
		for _, color := range Colors {
			for value := MinValue; value <= MaxValue; value++ {
				tiles = append(tiles, &Tile{ID: fmt.Sprintf("tile_%d", id), Value: value, Color: color})
				id++
			}
		}
	}
	tiles = append(tiles, &Tile{ID: fmt.Sprintf("fake_okey_%d", id), Color: Black, IsFakeOkey: true})
	id++
	tiles = append(tiles, &Tile{ID: fmt.Sprintf("fake_okey_%d", id), Color: Red, IsFakeOkey: true})

	return &Deck{Tiles: tiles, rng: rng}
}

func (d *Deck) Remaining() int {
	return len(d.Tiles)
}

// Shuffle is a Fisher-Yates pass over the deck's random source.
func (d *Deck) Shuffle() {
	for n := len(d.Tiles) - 1; n > 0; n-- {
		k := d.rng.Intn(n + 1)
		d.Tiles[k], d.Tiles[n] = d.Tiles[n], d.Tiles[k]
	}
}

// Draw removes the tile at the draw end. ok is false when the deck is empty.
func (d *Deck) Draw() (tile *Tile, ok bool) {
	if len(d.Tiles) == 0 {
		return nil, false
	}
	tile = d.Tiles[len(d.Tiles)-1]
	d.Tiles = d.Tiles[:len(d.Tiles)-1]
	return tile, true
}

func (d *Deck) Peek() (*Tile, bool) {
	if len(d.Tiles) == 0 {
		return nil, false
	}
	return d.Tiles[len(d.Tiles)-1], true
}

// ApplyOkeyRules marks every remaining tile with the okey face, and both fake
// okeys, as wildcards. Fake okeys take on the okey face.
func (d *Deck) ApplyOkeyRules(value int, color Color) {
	for _, t := range d.Tiles {
		switch {
		case t.IsFakeOkey:
			t.Value, t.Color = value, color
			t.IsWildcard = true
		case t.Matches(value, color):
			t.IsWildcard = true
		}
	}
}
