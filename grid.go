/*
Copyright © 2013 the flowmap authors.
This file is part of flowmap.

flowmap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

flowmap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with flowmap.  If not, see <http://www.gnu.org/licenses/>.
*/

package flowmap

import (
	"errors"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// DefaultNoData is the no-data sentinel used when none is specified.
const DefaultNoData = -999.999

var (
	// ErrInvalidGrid is returned when raster data is empty, ragged, or
	// otherwise can't be used to build a grid.
	ErrInvalidGrid = errors.New("flowmap: invalid grid")

	// ErrShapeMismatch is returned when an input array does not have
	// the same shape as the grid it is applied to.
	ErrShapeMismatch = errors.New("flowmap: shape mismatch")
)

// Grid is an immutable, regularly spaced raster of values. Row 0 is at
// the origin and rows increase in the Y direction.
type Grid struct {
	data *sparse.DenseArray

	// X0 and Y0 are the coordinates of the grid origin.
	X0, Y0 float64

	// CellSize is the edge length of the square grid cells.
	CellSize float64

	// NoData is the value used to represent missing data.
	NoData float64
}

// NewGrid creates a new grid from the given row-major data.
func NewGrid(data [][]float64, x0, y0, cellSize, noData float64) (*Grid, error) {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrInvalidGrid)
	}
	nx := len(data[0])
	a := sparse.ZerosDense(len(data), nx)
	for r, row := range data {
		if len(row) != nx {
			return nil, fmt.Errorf("%w: row %d has %d columns but row 0 has %d",
				ErrInvalidGrid, r, len(row), nx)
		}
		copy(a.Elements[r*nx:(r+1)*nx], row)
	}
	return NewGridFromArray(a, x0, y0, cellSize, noData)
}

// NewGridFromArray creates a new grid that uses a as its storage. a must
// be two-dimensional with shape (rows, cols) and must not be modified
// afterwards.
func NewGridFromArray(a *sparse.DenseArray, x0, y0, cellSize, noData float64) (*Grid, error) {
	if a == nil || len(a.Shape) != 2 || a.Shape[0] == 0 || a.Shape[1] == 0 {
		return nil, fmt.Errorf("%w: data must be a non-empty 2-D array", ErrInvalidGrid)
	}
	if !(cellSize > 0) {
		return nil, fmt.Errorf("%w: cell size %g should be >0", ErrInvalidGrid, cellSize)
	}
	return &Grid{
		data:     a,
		X0:       x0,
		Y0:       y0,
		CellSize: cellSize,
		NoData:   noData,
	}, nil
}

// Rows returns the number of rows in the grid.
func (g *Grid) Rows() int { return g.data.Shape[0] }

// Cols returns the number of columns in the grid.
func (g *Grid) Cols() int { return g.data.Shape[1] }

// Get returns the value at row r and column c.
func (g *Grid) Get(r, c int) float64 { return g.data.Get(r, c) }

// Origin returns the grid origin.
func (g *Grid) Origin() geom.Point { return geom.Point{X: g.X0, Y: g.Y0} }

// Position returns the location of the cell at row r and column c.
func (g *Grid) Position(r, c int) geom.Point {
	return geom.Point{
		X: g.X0 + float64(c)*g.CellSize,
		Y: g.Y0 + float64(r)*g.CellSize,
	}
}

// Data returns a copy of the grid values.
func (g *Grid) Data() [][]float64 {
	nx := g.Cols()
	o := make([][]float64, g.Rows())
	for r := range o {
		o[r] = make([]float64, nx)
		copy(o[r], g.data.Elements[r*nx:(r+1)*nx])
	}
	return o
}

// Array returns a copy of the underlying array.
func (g *Grid) Array() *sparse.DenseArray { return g.data.Copy() }

// AggregateConfig specifies how blocks of cells are combined by
// AggregateWith.
type AggregateConfig struct {
	// Offset is added to the mean of each block.
	Offset float64

	// ResetCellSize, if true, sets the cell size of the aggregated
	// grid to 1. Otherwise the cell size is multiplied by the
	// aggregation factor.
	ResetCellSize bool
}

var (
	// LegacyAggregate reproduces the historical resampling behavior:
	// block means are shifted up by 100 and the cell size becomes 1.
	LegacyAggregate = AggregateConfig{Offset: 100, ResetCellSize: true}

	// MeanAggregate is a plain block-mean resampling.
	MeanAggregate = AggregateConfig{}
)

// Aggregate resamples the grid by averaging non-overlapping
// factor × factor blocks using LegacyAggregate. Trailing rows and columns
// that do not fill a whole block are dropped. If factor is 1, the
// receiver itself is returned.
func (g *Grid) Aggregate(factor int) (*Grid, error) {
	return g.AggregateWith(factor, LegacyAggregate)
}

// AggregateWith is like Aggregate but uses the given configuration.
func (g *Grid) AggregateWith(factor int, cfg AggregateConfig) (*Grid, error) {
	if factor < 1 {
		return nil, fmt.Errorf("%w: aggregation factor %d should be >0", ErrInvalidGrid, factor)
	}
	if factor == 1 {
		return g, nil
	}
	ny, nx := g.Rows()/factor, g.Cols()/factor
	if ny == 0 || nx == 0 {
		return nil, fmt.Errorf("%w: aggregation factor %d is larger than grid shape %dx%d",
			ErrInvalidGrid, factor, g.Rows(), g.Cols())
	}
	a := sparse.ZerosDense(ny, nx)
	block := make([]float64, factor*factor)
	for r := 0; r < ny; r++ {
		for c := 0; c < nx; c++ {
			i := 0
			for br := r * factor; br < (r+1)*factor; br++ {
				for bc := c * factor; bc < (c+1)*factor; bc++ {
					block[i] = g.data.Get(br, bc)
					i++
				}
			}
			a.Set(floats.Sum(block)/float64(len(block))+cfg.Offset, r, c)
		}
	}
	cellSize := g.CellSize * float64(factor)
	if cfg.ResetCellSize {
		cellSize = 1
	}
	return NewGridFromArray(a, g.X0, g.Y0, cellSize, g.NoData)
}
