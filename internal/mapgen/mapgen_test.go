package mapgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dewil-official/GeneralsGenniaMod/internal/engine"
)

func TestDimension(t *testing.T) {
	assert.Equal(t, 10, Dimension(0, 10, 40))
	assert.Equal(t, 40, Dimension(1, 10, 40))
	assert.Equal(t, 33, Dimension(0.75, 10, 40))
	assert.Equal(t, 10, Dimension(-3, 10, 40))
}

func TestGenerate_PlacesOwnedKings(t *testing.T) {
	p := Params{Width: 20, Height: 15, Mountain: 1, City: 1, Swamp: 0.5, RevealKing: true, Seed: 42}

	grid, kings, err := Generate(p, 4)
	require.NoError(t, err)
	require.Len(t, kings, 4)
	assert.Equal(t, 20, grid.W)
	assert.Equal(t, 15, grid.H)

	for i, k := range kings {
		tile := grid.At(k)
		require.NotNil(t, tile)
		assert.Equal(t, engine.TileKing, tile.Type)
		assert.Equal(t, i, tile.Owner)
		assert.Equal(t, 1, tile.Army)
		assert.True(t, tile.AlwaysRevealed)
	}
	assert.True(t, connected(grid, kings), "all kings must reach each other")

	owned := 0
	for _, tile := range grid.Tiles {
		if !tile.IsNeutral() {
			owned++
		}
		if tile.Type == engine.TileCity {
			assert.True(t, tile.IsNeutral())
			assert.GreaterOrEqual(t, tile.Army, cityBaseArmy)
		}
	}
	assert.Equal(t, 4, owned, "only kings start owned")
}

func TestGenerate_IsDeterministic(t *testing.T) {
	p := Params{Width: 12, Height: 12, Mountain: 0.5, City: 0.5, Seed: 7}

	g1, k1, err := Generate(p, 3)
	require.NoError(t, err)
	g2, k2, err := Generate(p, 3)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Equal(t, g1.Tiles, g2.Tiles)
}

func TestGenerate_TooManyPlayers(t *testing.T) {
	_, _, err := Generate(Params{Width: 3, Height: 3, Seed: 1}, 3)
	require.ErrorIs(t, err, ErrTooManyPlayers)
}
