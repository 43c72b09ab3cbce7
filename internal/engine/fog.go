package engine

import "encoding/json"

// TileView is what one player is shown for a tile. It encodes as
// [type, color|null, army|null].
type TileView struct {
	Type  TileType
	Color *int
	Army  *int
}

func (v TileView) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{v.Type, v.Color, v.Army})
}

func (v *TileView) UnmarshalJSON(data []byte) error {
	var raw [3]*int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Type = TileFog
	if raw[0] != nil {
		v.Type = TileType(*raw[0])
	}
	v.Color, v.Army = raw[1], raw[2]
	return nil
}

// MapView is indexed [y][x].
type MapView [][]TileView

func (m MapView) At(p Position) (TileView, bool) {
	if p.Y < 0 || p.Y >= len(m) || p.X < 0 || p.X >= len(m[p.Y]) {
		return TileView{}, false
	}
	return m[p.Y][p.X], true
}

type ViewOptions struct {
	FogOfWar bool
	// Omniscient shows the whole board, used for spectators.
	Omniscient bool
}

// Project computes viewer's picture of the board from the current ownership
// only. Nothing is remembered between calls.
func (g *Game) Project(viewer int, opts ViewOptions) MapView {
	all := !opts.FogOfWar || opts.Omniscient
	visible := make([]bool, len(g.Grid.Tiles))
	if !all {
		for i, t := range g.Grid.Tiles {
			if t.Owner != viewer || viewer == Neutral {
				continue
			}
			p := g.Grid.Pos(i)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					q := Position{X: p.X + dx, Y: p.Y + dy}
					if g.Grid.InBounds(q) {
						visible[g.Grid.Idx(q)] = true
					}
				}
			}
		}
	}

	view := make(MapView, g.Grid.H)
	for y := range view {
		row := make([]TileView, g.Grid.W)
		for x := range row {
			idx := y*g.Grid.W + x
			t := g.Grid.Tiles[idx]
			if all || visible[idx] || t.AlwaysRevealed {
				row[x] = g.visibleTile(t)
			} else {
				row[x] = hiddenTile(t)
			}
		}
		view[y] = row
	}
	return view
}

func (g *Game) visibleTile(t Tile) TileView {
	v := TileView{Type: t.Type}
	if !t.IsNeutral() {
		color := g.Players[t.Owner].Color
		v.Color = &color
	}
	if t.AlwaysRevealed || t.UnitsCountRevealed {
		army := t.Army
		v.Army = &army
	}
	return v
}

func hiddenTile(t Tile) TileView {
	switch t.Type {
	case TileMountain, TileCity:
		return TileView{Type: TileObstacle}
	default:
		return TileView{Type: TileFog}
	}
}
