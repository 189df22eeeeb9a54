package tile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hamnet/maptile/internal/geo"
)

func TestAt_EquatorPrimeMeridian(t *testing.T) {
	tl := At(geo.Position{Latitude: 0, Longitude: 0}, 3)

	assert.Equal(t, 4, tl.X)
	assert.Equal(t, 4, tl.Y)
	assert.Equal(t, 3, tl.Zoom)
}

func TestAt_TilePositionCapturesQuantization(t *testing.T) {
	pos := geo.Position{Latitude: 51.5, Longitude: -0.12}
	tl := At(pos, 10)

	// The input position survives; the tile position is the NW corner.
	assert.Equal(t, pos, tl.Position)
	assert.NotEqual(t, pos, tl.TilePosition)
	assert.True(t, tl.Contains(pos))

	// Building the same tile from its indices is consistent.
	fromXY := XY(tl.X, tl.Y, 10)
	assert.Equal(t, tl.X, fromXY.X)
	assert.Equal(t, tl.Y, fromXY.Y)
	assert.Equal(t, tl.TilePosition, fromXY.TilePosition)
	assert.Equal(t, fromXY.Position, fromXY.TilePosition)
}

func TestPath(t *testing.T) {
	tl := XY(4, 4, 3)

	assert.Equal(t, "3/4/4.png", tl.Path())
	assert.Equal(t, "3/4/4.bad", tl.BadPath())
	assert.Equal(t, "3/4", tl.Dir())
}

func TestOffsetAndDelta(t *testing.T) {
	tl := XY(10, 20, 6)

	neighbor := tl.Offset(1, -2)
	assert.Equal(t, 11, neighbor.X)
	assert.Equal(t, 18, neighbor.Y)
	assert.Equal(t, 6, neighbor.Zoom)

	dx, dy := neighbor.Delta(tl)
	assert.Equal(t, 1, dx)
	assert.Equal(t, -2, dy)
}

func TestContains_StrictAtCorners(t *testing.T) {
	tl := XY(4, 4, 3)
	edges := tl.Edges()

	assert.False(t, tl.Contains(geo.Position{Latitude: edges.North, Longitude: edges.West}))
	assert.False(t, tl.Contains(geo.Position{Latitude: edges.South, Longitude: edges.East}))
	assert.True(t, tl.Contains(geo.Position{
		Latitude:  (edges.South + edges.North) / 2,
		Longitude: (edges.West + edges.East) / 2,
	}))
}

func TestString(t *testing.T) {
	tl := XY(4, 4, 3)
	assert.Contains(t, tl.String(), "(4,4)")
}
