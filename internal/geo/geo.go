// Package geo holds the Web-Mercator slippy-map math used to address map
// tiles. The tile grid at zoom z is 2^z x 2^z; formulas follow the
// OpenStreetMap slippy-map tilename scheme.
package geo

import (
	"errors"
	"fmt"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// TileSize is the edge length of a rendered tile in pixels.
const TileSize = 256

// earthCircumference is the equatorial circumference in meters.
const earthCircumference = 40075016.686

// ErrInvalidZoom is returned when a zoom level outside 0..MaxZoom is used.
var ErrInvalidZoom = errors.New("invalid zoom level")

// MaxZoom is the deepest zoom level the tile math supports.
const MaxZoom = 22

// Position is a geographic point in degrees.
type Position struct {
	Latitude  float64
	Longitude float64
}

func (p Position) String() string {
	return fmt.Sprintf("%.4f,%.4f", p.Latitude, p.Longitude)
}

// TileIndices converts a position to tile grid coordinates at the given zoom.
func TileIndices(pos Position, zoom int) (x, y int) {
	latRad := pos.Latitude * math.Pi / 180.0
	n := math.Pow(2, float64(zoom))
	x = int((pos.Longitude + 180.0) / 360.0 * n)
	y = int((1.0 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2.0 * n)
	return x, y
}

// TilePosition returns the geographic position of the northwest corner of the
// tile at (x, y). Round-tripping a position through TileIndices and back
// yields the tile corner, not the original position; that quantization is
// inherent to the grid.
func TilePosition(x, y, zoom int) Position {
	n := math.Pow(2, float64(zoom))
	lonDeg := float64(x)/n*360.0 - 180.0
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	return Position{
		Latitude:  latRad * 180.0 / math.Pi,
		Longitude: lonDeg,
	}
}

// Edges is the bounding box of a tile in degrees.
type Edges struct {
	South float64
	West  float64
	North float64
	East  float64
}

// TileEdges returns the bounding box of the tile at (x, y).
func TileEdges(x, y, zoom int) Edges {
	northwest := TilePosition(x, y, zoom)
	southeast := TilePosition(x+1, y+1, zoom)
	return Edges{
		South: southeast.Latitude,
		West:  northwest.Longitude,
		North: northwest.Latitude,
		East:  southeast.Longitude,
	}
}

// Contains reports whether pos lies strictly inside the box. Points exactly
// on an edge are outside. Not valid for tiles straddling the 180th meridian.
func (e Edges) Contains(pos Position) bool {
	latMatch := e.South < pos.Latitude && pos.Latitude < e.North
	lonMatch := e.West < pos.Longitude && pos.Longitude < e.East
	return latMatch && lonMatch
}

// ClampIndex constrains a tile index to the valid range for the zoom level.
func ClampIndex(i, zoom int) int {
	maxIndex := (1 << zoom) - 1
	return max(0, min(i, maxIndex))
}

// ToWebMercator projects a position to EPSG:3857 meters.
func ToWebMercator(pos Position) (x, y float64) {
	transform := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = transform(pos.Longitude, pos.Latitude, 0)
	return x, y
}

// MetersPerPixel returns the ground resolution at the given latitude and zoom.
func MetersPerPixel(latitude float64, zoom int) float64 {
	return earthCircumference * math.Cos(latitude*math.Pi/180) /
		(math.Pow(2, float64(zoom)) * TileSize)
}

// TileCenter returns the center of the tile at (x, y) as a geometry point,
// for collaborators that want a geometry rather than a Position.
func TileCenter(x, y, zoom int) geom.Point {
	edges := TileEdges(x, y, zoom)
	point, err := geom.NewPoint(geom.Coordinates{
		XY: geom.XY{
			X: (edges.West + edges.East) / 2,
			Y: (edges.South + edges.North) / 2,
		},
		Type: geom.DimXY,
	})
	if err != nil {
		// Tile edges are always finite, so the coordinates validate.
		return geom.Point{}
	}
	return point
}
