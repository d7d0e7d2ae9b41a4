package austrianelevation

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
)

const (
	// DatabaseWidth is the width of a tile database band along the x axis.
	DatabaseWidth = 20000

	// RasterSize is the size of a raster cell along both axes.
	RasterSize = 10

	// DefaultBaseURL is the base URL of the Austrian elevation row files.
	DefaultBaseURL = "https://raw.githubusercontent.com/maegger"

	// DefaultSRID is the SRID of the coordinates expected by Elevation.
	DefaultSRID = 3857
)

// NewAustrianElevation returns a new RowFileSet configured for the Austrian
// elevation row files. Unless overridden by options, rows are fetched from
// DefaultBaseURL and stored in the current directory.
func NewAustrianElevation(options ...RowFileSetOption) (*RowFileSet, error) {
	return NewRowFileSet(slices.Concat(
		[]RowFileSetOption{
			WithSource(NewHTTPSource(DefaultBaseURL)),
			WithStore(NewDirStore(".")),
			WithSRID(DefaultSRID),
			WithRowKeyFunc(AustrianRowKey),
		},
		options,
	)...)
}

// AustrianRowKey returns the row key of the row file containing coord.
func AustrianRowKey(coord Coord) RowKey {
	return RowKey{
		Database: coord.X - floorModInt(coord.X, DatabaseWidth),
		Y:        coord.Y,
	}
}

// DatabaseID returns the tile database ID for x.
func DatabaseID(x float64) int {
	return floorToMultiple(x, DatabaseWidth)
}

// RasterX returns the raster column for x.
func RasterX(x float64) int {
	return floorToMultiple(x, RasterSize)
}

// RasterY returns the raster line for y.
func RasterY(y float64) int {
	return floorToMultiple(y, RasterSize)
}

// CoordOf returns the raster coordinate of the cell containing p.
func CoordOf(p Point) Coord {
	return Coord{
		X: RasterX(p.X()),
		Y: RasterY(p.Y()),
	}
}

// MaxRowKeysInBound is the maximum number of row keys returned by
// RowKeysInBound.
const MaxRowKeysInBound = 1 << 20

// maxCoord is the largest coordinate magnitude that is converted to a raster
// index exactly.
const maxCoord = 1 << 52

var errBoundTooLarge = errors.New("bound too large")

// RowKeysInBound returns the keys of all row files that intersect bound,
// ordered by database and then by raster line. It returns an error if bound
// is not finite or intersects more than MaxRowKeysInBound row files.
func RowKeysInBound(bound orb.Bound) ([]RowKey, error) {
	for _, v := range []float64{bound.Min.X(), bound.Min.Y(), bound.Max.X(), bound.Max.Y()} {
		if !isFinite(v) {
			return nil, fmt.Errorf("%v: %w", bound, errNonFiniteCoord)
		}
		if math.Abs(v) > maxCoord {
			return nil, fmt.Errorf("%v: %w", bound, errBoundTooLarge)
		}
	}
	minDatabase, maxDatabase := DatabaseID(bound.Min.X()), DatabaseID(bound.Max.X())
	minY, maxY := RasterY(bound.Min.Y()), RasterY(bound.Max.Y())
	if maxDatabase < minDatabase || maxY < minY {
		return nil, nil
	}
	databases := (maxDatabase-minDatabase)/DatabaseWidth + 1
	ys := (maxY-minY)/RasterSize + 1
	if ys > MaxRowKeysInBound || databases > MaxRowKeysInBound/ys {
		return nil, fmt.Errorf("%v: %w", bound, errBoundTooLarge)
	}
	rowKeys := make([]RowKey, 0, databases*ys)
	for database := minDatabase; database <= maxDatabase; database += DatabaseWidth {
		for y := minY; y <= maxY; y += RasterSize {
			rowKeys = append(rowKeys, RowKey{Database: database, Y: y})
		}
	}
	return rowKeys, nil
}

// floorMod returns a mod n with the sign of n.
func floorMod(a, n float64) float64 {
	m := math.Mod(a, n)
	if m != 0 && (m < 0) != (n < 0) {
		m += n
	}
	return m
}

func floorModInt(a, n int) int {
	m := a % n
	if m != 0 && (m < 0) != (n < 0) {
		m += n
	}
	return m
}

// floorToMultiple returns v rounded down to a multiple of n, truncated to an
// int.
func floorToMultiple(v float64, n int) int {
	return int(v - floorMod(v, float64(n)))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
