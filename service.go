package austrianelevation

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-proj/v10"
)

// An ElevationService returns elevations for coordinates in either the row
// file set's reference system or in EPSG:4326.
type ElevationService struct {
	rowFileSet *RowFileSet
	pj         *proj.PJ
}

// NewAustrianElevationService returns a new ElevationService backed by the
// Austrian elevation row files.
func NewAustrianElevationService(options ...RowFileSetOption) (*ElevationService, error) {
	rowFileSet, err := NewAustrianElevation(options...)
	if err != nil {
		return nil, err
	}
	return NewElevationService(rowFileSet)
}

// NewElevationService returns a new ElevationService backed by rowFileSet.
func NewElevationService(rowFileSet *RowFileSet) (*ElevationService, error) {
	pj, err := proj.NewCRSToCRS("epsg:4326", fmt.Sprintf("epsg:%d", rowFileSet.SRID()), nil)
	if err != nil {
		return nil, err
	}
	// Use longitude, latitude and easting, northing axis order.
	pj, err = pj.NormalizeForVisualization()
	if err != nil {
		return nil, err
	}
	return &ElevationService{
		rowFileSet: rowFileSet,
		pj:         pj,
	}, nil
}

// RowFileSet returns s's row file set.
func (s *ElevationService) RowFileSet() *RowFileSet {
	return s.rowFileSet
}

// Elevation returns the elevation at p and whether it was found.
func (s *ElevationService) Elevation(ctx context.Context, p Point) (int, bool, error) {
	return s.rowFileSet.Elevation(ctx, p)
}

// Elevation4326 returns the elevation at the longitude and latitude p and
// whether it was found.
func (s *ElevationService) Elevation4326(ctx context.Context, p Point) (int, bool, error) {
	projected, err := s.Project(orb.Point{p.X(), p.Y()})
	if err != nil {
		return 0, false, err
	}
	return s.rowFileSet.Elevation(ctx, projected)
}

// Elevations returns the elevations of the raster cells containing coords.
// Missing elevations are represented by NaNs.
func (s *ElevationService) Elevations(ctx context.Context, coords [][]float64) ([]float64, error) {
	rasterCoords := make([]Coord, len(coords))
	for i, coord := range coords {
		if !isFinite(coord[0]) || !isFinite(coord[1]) {
			return nil, fmt.Errorf("%v, %v: %w", coord[0], coord[1], errNonFiniteCoord)
		}
		rasterCoords[i] = Coord{
			X: RasterX(coord[0]),
			Y: RasterY(coord[1]),
		}
	}
	return s.rowFileSet.Samples(ctx, rasterCoords)
}

// Elevations4326 returns the elevations at the longitude, latitude pairs in
// coords4326.
func (s *ElevationService) Elevations4326(ctx context.Context, coords4326 [][]float64) ([]float64, error) {
	coords := cloneCoords(coords4326)
	if err := s.pj.ForwardFloat64Slices(coords); err != nil {
		return nil, err
	}
	return s.Elevations(ctx, coords)
}

// InterpolatedElevations returns the bilinearly interpolated elevations at
// coords.
func (s *ElevationService) InterpolatedElevations(ctx context.Context, coords [][]float64) ([]float64, error) {
	return InterpolateBilinear(ctx, s.rowFileSet, coords)
}

// Profile returns the elevations at each vertex of lineString.
func (s *ElevationService) Profile(ctx context.Context, lineString orb.LineString) ([]float64, error) {
	return s.Elevations(ctx, lineStringCoords(lineString))
}

// Profile4326 returns the elevations at each vertex of lineString, whose
// vertices are longitude, latitude pairs.
func (s *ElevationService) Profile4326(ctx context.Context, lineString orb.LineString) ([]float64, error) {
	return s.Elevations4326(ctx, lineStringCoords(lineString))
}

// Project returns p, a longitude and latitude, in s's reference system.
func (s *ElevationService) Project(p orb.Point) (orb.Point, error) {
	coords := [][]float64{{p[0], p[1]}}
	if err := s.pj.ForwardFloat64Slices(coords); err != nil {
		return orb.Point{}, err
	}
	return orb.Point{coords[0][0], coords[0][1]}, nil
}

func lineStringCoords(lineString orb.LineString) [][]float64 {
	coords := make([][]float64, len(lineString))
	for i, p := range lineString {
		coords[i] = []float64{p[0], p[1]}
	}
	return coords
}

func cloneCoords(coords [][]float64) [][]float64 {
	clonedCoordsFlat := make([]float64, 2*len(coords))
	clonedCoords := make([][]float64, len(coords))
	for i, coord := range coords {
		copy(clonedCoordsFlat[2*i:2*i+2], coord)
		clonedCoords[i] = clonedCoordsFlat[2*i : 2*i+2]
	}
	return clonedCoords
}
