package geo

import (
	"math"
	"testing"
)

func TestTileIndices_CenterOfGridAtZoom3(t *testing.T) {
	x, y := TileIndices(Position{Latitude: 0, Longitude: 0}, 3)

	if x != 4 {
		t.Errorf("expected x=4, got %d", x)
	}
	if y != 4 {
		t.Errorf("expected y=4, got %d", y)
	}
}

func TestTileIndices_RoundTrip(t *testing.T) {
	// Round trip through the tile center; corners sit on the grid boundary
	// where float rounding can land them in the neighboring row.
	for _, zoom := range []int{0, 1, 3, 7, 12} {
		n := 1 << zoom
		for _, x := range []int{0, n / 3, n / 2, n - 1} {
			for _, y := range []int{0, n / 4, n / 2, n - 1} {
				edges := TileEdges(x, y, zoom)
				center := Position{
					Latitude:  (edges.South + edges.North) / 2,
					Longitude: (edges.West + edges.East) / 2,
				}
				gotX, gotY := TileIndices(center, zoom)
				if gotX != x || gotY != y {
					t.Errorf("zoom %d: round trip of (%d,%d) gave (%d,%d)",
						zoom, x, y, gotX, gotY)
				}
			}
		}
	}
}

func TestTilePosition_NorthwestCorner(t *testing.T) {
	// Tile (0,0) at zoom 0 covers the whole world; its NW corner is the
	// top-left of the Mercator square.
	pos := TilePosition(0, 0, 0)

	if pos.Longitude != -180.0 {
		t.Errorf("expected longitude=-180, got %f", pos.Longitude)
	}
	if math.Abs(pos.Latitude-85.0511) > 0.001 {
		t.Errorf("expected latitude ~85.0511, got %f", pos.Latitude)
	}
}

func TestTileEdges_Ordering(t *testing.T) {
	edges := TileEdges(4, 4, 3)

	if edges.South >= edges.North {
		t.Errorf("expected south < north, got south=%f north=%f", edges.South, edges.North)
	}
	if edges.West >= edges.East {
		t.Errorf("expected west < east, got west=%f east=%f", edges.West, edges.East)
	}
	if edges.North != 0.0 {
		t.Errorf("tile (4,4) at zoom 3 starts at the equator, got north=%f", edges.North)
	}
	if edges.West != 0.0 {
		t.Errorf("tile (4,4) at zoom 3 starts at the prime meridian, got west=%f", edges.West)
	}
}

func TestEdges_Contains_StrictBounds(t *testing.T) {
	edges := TileEdges(4, 4, 3)

	center := Position{
		Latitude:  (edges.South + edges.North) / 2,
		Longitude: (edges.West + edges.East) / 2,
	}
	if !edges.Contains(center) {
		t.Error("expected center of tile to be contained")
	}

	// Corners sit exactly on the boundary and must be excluded.
	corners := []Position{
		{Latitude: edges.North, Longitude: edges.West},
		{Latitude: edges.South, Longitude: edges.East},
		{Latitude: edges.North, Longitude: edges.East},
		{Latitude: edges.South, Longitude: edges.West},
	}
	for _, corner := range corners {
		if edges.Contains(corner) {
			t.Errorf("expected corner %v to be excluded", corner)
		}
	}

	outside := Position{Latitude: edges.North + 1, Longitude: edges.West}
	if edges.Contains(outside) {
		t.Errorf("expected %v to be outside", outside)
	}
}

func TestClampIndex(t *testing.T) {
	if got := ClampIndex(-3, 3); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := ClampIndex(900, 3); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if got := ClampIndex(5, 3); got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
}

func TestToWebMercator_Origin(t *testing.T) {
	x, y := ToWebMercator(Position{Latitude: 0, Longitude: 0})

	if math.Abs(x) > 0.001 || math.Abs(y) > 0.001 {
		t.Errorf("expected origin to project to (0,0), got (%f,%f)", x, y)
	}
}

func TestMetersPerPixel_HalvesPerZoomLevel(t *testing.T) {
	coarse := MetersPerPixel(45.0, 4)
	fine := MetersPerPixel(45.0, 5)

	if math.Abs(coarse/fine-2.0) > 0.0001 {
		t.Errorf("expected resolution to halve per zoom level, got ratio %f", coarse/fine)
	}
}

func TestTileCenter_InsideEdges(t *testing.T) {
	point := TileCenter(4, 4, 3)
	coords, ok := point.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}

	edges := TileEdges(4, 4, 3)
	if !edges.Contains(Position{Latitude: coords.Y, Longitude: coords.X}) {
		t.Errorf("expected tile center (%f,%f) inside tile edges", coords.X, coords.Y)
	}
}
