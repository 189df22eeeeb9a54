// Package tile defines the disposable tile value object. A Tile is
// recreated for every lookup and owns nothing beyond its computed fields;
// the persistent state is the on-disk cache entry managed by internal/cache.
package tile

import (
	"fmt"
	"path"

	"github.com/hamnet/maptile/internal/geo"
)

// Tile addresses one slippy-map tile. Immutable after construction.
type Tile struct {
	// Position is the position the tile was built from, or the tile's
	// northwest corner when built from grid indices.
	Position geo.Position

	X    int
	Y    int
	Zoom int

	// TilePosition is the northwest corner of the tile. It differs from
	// Position by the grid quantization.
	TilePosition geo.Position
}

// At builds the tile containing pos at the given zoom.
func At(pos geo.Position, zoom int) Tile {
	x, y := geo.TileIndices(pos, zoom)
	return Tile{
		Position:     pos,
		X:            x,
		Y:            y,
		Zoom:         zoom,
		TilePosition: geo.TilePosition(x, y, zoom),
	}
}

// XY builds the tile at grid indices (x, y) at the given zoom.
func XY(x, y, zoom int) Tile {
	pos := geo.TilePosition(x, y, zoom)
	return Tile{
		Position:     pos,
		X:            x,
		Y:            y,
		Zoom:         zoom,
		TilePosition: pos,
	}
}

// Path returns the tile's cache-relative path, also used as the remote URL
// suffix.
func (t Tile) Path() string {
	return fmt.Sprintf("%d/%d/%d.png", t.Zoom, t.X, t.Y)
}

// BadPath returns the cache-relative path of the tile's bad marker, the
// empty file recording that the server has no such tile.
func (t Tile) BadPath() string {
	return fmt.Sprintf("%d/%d/%d.bad", t.Zoom, t.X, t.Y)
}

// Dir returns the cache-relative directory holding the tile.
func (t Tile) Dir() string {
	return path.Dir(t.Path())
}

// Offset returns the tile dx columns and dy rows away at the same zoom.
func (t Tile) Offset(dx, dy int) Tile {
	return XY(t.X+dx, t.Y+dy, t.Zoom)
}

// Delta returns the grid distance from other to t.
func (t Tile) Delta(other Tile) (dx, dy int) {
	return t.X - other.X, t.Y - other.Y
}

// Edges returns the tile's bounding box in degrees.
func (t Tile) Edges() geo.Edges {
	return geo.TileEdges(t.X, t.Y, t.Zoom)
}

// Contains reports whether pos lies strictly inside the tile.
func (t Tile) Contains(pos geo.Position) bool {
	return t.Edges().Contains(pos)
}

func (t Tile) String() string {
	return fmt.Sprintf("%s (%d,%d)", t.Position, t.X, t.Y)
}
