// Package mapgen builds the starting board for a room from its terrain
// settings. Output is fully determined by Params.Seed.
package mapgen

import (
	"errors"
	"math/rand/v2"

	"github.com/dewil-official/GeneralsGenniaMod/internal/engine"
)

var ErrTooManyPlayers = errors.New("map too small for player count")

const (
	maxAttempts     = 16
	mountainDensity = 0.2
	cityDensity     = 0.04
	swampDensity    = 0.1
	cityBaseArmy    = 40
	cityArmySpread  = 11
)

type Params struct {
	Width, Height int
	Mountain      float64
	City          float64
	Swamp         float64
	RevealKing    bool
	Seed          uint64
}

// Generator is the signature rooms use, so tests can hand in fixed boards.
type Generator func(p Params, players int) (*engine.Grid, []engine.Position, error)

// Dimension maps a [0,1] size setting onto [lo, hi] tiles.
func Dimension(fraction float64, lo, hi int) int {
	fraction = min(max(fraction, 0), 1)
	return lo + int(fraction*float64(hi-lo)+0.5)
}

// Generate places terrain, neutral cities and one King per player. King i is
// owned by player index i. Every King can reach every other King.
func Generate(p Params, players int) (*engine.Grid, []engine.Position, error) {
	area := p.Width * p.Height
	if players <= 0 || players*4 > area {
		return nil, nil, ErrTooManyPlayers
	}
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))

	for attempt := 0; attempt < maxAttempts; attempt++ {
		grid, kings, ok := build(rng, p, players, true)
		if ok && connected(grid, kings) {
			return grid, kings, nil
		}
	}
	// Without mountains every tile is passable.
	grid, kings, ok := build(rng, p, players, false)
	if !ok {
		return nil, nil, ErrTooManyPlayers
	}
	return grid, kings, nil
}

func build(rng *rand.Rand, p Params, players int, mountains bool) (*engine.Grid, []engine.Position, bool) {
	grid := engine.NewGrid(p.Width, p.Height)
	area := len(grid.Tiles)
	free := rng.Perm(area)

	take := func() (int, bool) {
		if len(free) == 0 {
			return 0, false
		}
		idx := free[0]
		free = free[1:]
		return idx, true
	}

	kings := make([]engine.Position, 0, players)
	spacing := max(p.Width, p.Height) / 2
	for len(kings) < players {
		placed := false
		for i, idx := range free {
			pos := grid.Pos(idx)
			if farFromAll(pos, kings, spacing) {
				kings = append(kings, pos)
				t := &grid.Tiles[idx]
				t.Type = engine.TileKing
				t.Army = 1
				t.Owner = len(kings) - 1
				t.AlwaysRevealed = p.RevealKing
				free = append(free[:i], free[i+1:]...)
				placed = true
				break
			}
		}
		if !placed {
			if spacing == 0 {
				return nil, nil, false
			}
			spacing--
		}
	}

	scatter := func(fraction, density float64, apply func(t *engine.Tile)) {
		n := int(fraction * density * float64(area))
		for i := 0; i < n; i++ {
			idx, ok := take()
			if !ok {
				return
			}
			apply(&grid.Tiles[idx])
		}
	}
	if mountains {
		scatter(p.Mountain, mountainDensity, func(t *engine.Tile) { t.Type = engine.TileMountain })
	}
	scatter(p.City, cityDensity, func(t *engine.Tile) {
		t.Type = engine.TileCity
		t.Army = cityBaseArmy + rng.IntN(cityArmySpread)
	})
	scatter(p.Swamp, swampDensity, func(t *engine.Tile) { t.Type = engine.TileSwamp })

	return grid, kings, true
}

func farFromAll(pos engine.Position, others []engine.Position, spacing int) bool {
	for _, o := range others {
		dx, dy := pos.X-o.X, pos.Y-o.Y
		if dx < 0 {
			dx = -dx
		}
		if dy < 0 {
			dy = -dy
		}
		if dx+dy < spacing {
			return false
		}
	}
	return true
}

// connected runs a BFS over passable tiles from the first King.
func connected(grid *engine.Grid, kings []engine.Position) bool {
	if len(kings) == 0 {
		return true
	}
	seen := make([]bool, len(grid.Tiles))
	queue := []engine.Position{kings[0]}
	seen[grid.Idx(kings[0])] = true
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, q := range grid.Neighbors(p) {
			idx := grid.Idx(q)
			if seen[idx] || !grid.Tiles[idx].Passable() {
				continue
			}
			seen[idx] = true
			queue = append(queue, q)
		}
	}
	for _, k := range kings {
		if !seen[grid.Idx(k)] {
			return false
		}
	}
	return true
}
