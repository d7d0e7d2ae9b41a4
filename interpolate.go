package austrianelevation

import (
	"context"
	"fmt"
)

// InterpolateBilinear returns the elevations at coords, interpolated
// bilinearly between the four surrounding raster cells. If any of the
// surrounding cells is missing, the result is NaN. Non-finite coordinates are
// an error.
func InterpolateBilinear(ctx context.Context, raster Raster, coords [][]float64) ([]float64, error) {
	scaleX, scaleY := raster.Scale()
	rasterCoords := make([]Coord, 4*len(coords))
	for i, coord := range coords {
		if !isFinite(coord[0]) || !isFinite(coord[1]) {
			return nil, fmt.Errorf("%v, %v: %w", coord[0], coord[1], errNonFiniteCoord)
		}
		x0 := floorToMultiple(coord[0], scaleX)
		y0 := floorToMultiple(coord[1], scaleY)
		x1 := x0 + scaleX
		y1 := y0 + scaleY
		rasterCoords[4*i+0] = Coord{X: x0, Y: y0}
		rasterCoords[4*i+1] = Coord{X: x1, Y: y0}
		rasterCoords[4*i+2] = Coord{X: x0, Y: y1}
		rasterCoords[4*i+3] = Coord{X: x1, Y: y1}
	}
	samples, err := raster.Samples(ctx, rasterCoords)
	if err != nil {
		return nil, err
	}
	result := make([]float64, len(coords))
	for i, coord := range coords {
		dx := (coord[0] - float64(rasterCoords[4*i].X)) / float64(scaleX)
		dy := (coord[1] - float64(rasterCoords[4*i].Y)) / float64(scaleY)
		result[i] = 0 +
			samples[4*i+0]*(1-dx)*(1-dy) +
			samples[4*i+1]*dx*(1-dy) +
			samples[4*i+2]*(1-dx)*dy +
			samples[4*i+3]*dx*dy
	}
	return result, nil
}
