package austrianelevation

import "context"

// A Point is a planar coordinate in the raster's projected reference system.
// github.com/paulmach/orb.Point implements Point.
type Point interface {
	X() float64
	Y() float64
}

// A Coord is a raster coordinate, i.e. the lower left corner of a raster
// cell.
type Coord struct {
	X int
	Y int
}

// A RowKey identifies a row file.
type RowKey struct {
	Database int // Tile database ID.
	Y        int // Raster line.
}

type Raster interface {
	Samples(ctx context.Context, coords []Coord) ([]float64, error)
	Scale() (int, int)
}
