package engine

type TileType int

const (
	TileKing TileType = iota
	TileCity
	TileFog      // view only
	TileObstacle // view only: a hidden Mountain or City
	TilePlain
	TileMountain
	TileSwamp
)

// Neutral is the owner index of a tile no player holds.
const Neutral = -1

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Adjacent reports whether q is one orthogonal step away from p.
func (p Position) Adjacent(q Position) bool {
	dx, dy := p.X-q.X, p.Y-q.Y
	return dx*dx+dy*dy == 1
}

// Tile is a single cell of the board. Owner indexes Game.Players.
type Tile struct {
	Type               TileType
	Army               int
	Owner              int
	AlwaysRevealed     bool
	UnitsCountRevealed bool
	Priority           int
}

func (t *Tile) IsNeutral() bool { return t.Owner == Neutral }

// Passable reports whether armies may enter the tile.
func (t *Tile) Passable() bool {
	return t.Type != TileMountain && t.Type != TileObstacle
}

// Grid is a row-major board of W*H tiles.
type Grid struct {
	W, H  int
	Tiles []Tile
}

// NewGrid returns a board of neutral, empty plains.
func NewGrid(w, h int) *Grid {
	g := &Grid{W: w, H: h, Tiles: make([]Tile, w*h)}
	for i := range g.Tiles {
		g.Tiles[i] = Tile{Type: TilePlain, Owner: Neutral, UnitsCountRevealed: true}
	}
	return g
}

func (g *Grid) Idx(p Position) int      { return p.Y*g.W + p.X }
func (g *Grid) Pos(idx int) Position    { return Position{X: idx % g.W, Y: idx / g.W} }
func (g *Grid) InBounds(p Position) bool { return p.X >= 0 && p.X < g.W && p.Y >= 0 && p.Y < g.H }

// At returns the tile at p, or nil when p is off the board.
func (g *Grid) At(p Position) *Tile {
	if !g.InBounds(p) {
		return nil
	}
	return &g.Tiles[g.Idx(p)]
}

// Neighbors returns the in-bounds orthogonal neighbours of p.
func (g *Grid) Neighbors(p Position) []Position {
	out := make([]Position, 0, 4)
	for _, d := range [4]Position{{0, -1}, {1, 0}, {0, 1}, {-1, 0}} {
		q := Position{X: p.X + d.X, Y: p.Y + d.Y}
		if g.InBounds(q) {
			out = append(out, q)
		}
	}
	return out
}

func (g *Grid) Clone() *Grid {
	c := &Grid{W: g.W, H: g.H, Tiles: make([]Tile, len(g.Tiles))}
	copy(c.Tiles, g.Tiles)
	return c
}
