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

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoNeighbors is returned when a cell has no in-bounds
	// neighbors, which only happens in a 1×1 grid.
	ErrNoNeighbors = errors.New("flowmap: cell has no neighbors")

	// ErrCycle is returned by Check when the drainage links contain a cycle.
	ErrCycle = errors.New("flowmap: drainage cycle")

	// ErrLinkSymmetry is returned by Check when a downstream link is not
	// matched by an upstream link, or the reverse.
	ErrLinkSymmetry = errors.New("flowmap: asymmetric drainage link")
)

// neighborOffsets are the (row, column) offsets of the eight neighbors
// of a cell, in the order they are searched.
var neighborOffsets = [8][2]int{
	{1, -1}, {1, 0}, {1, 1},
	{0, -1}, {0, 1},
	{-1, -1}, {-1, 0}, {-1, 1},
}

// FlowGrid routes water across an elevation grid. Every cell drains
// into its lowest neighbor if that neighbor is strictly lower; otherwise
// the cell is a pit.
type FlowGrid struct {
	*Grid

	cells []*Cell
	pits  []int

	// Accumulated flow cache, indexed like cells.
	flow  []float64
	fresh []bool

	cascade bool

	// Log receives diagnostic messages.
	Log logrus.FieldLogger
}

// Option configures a FlowGrid.
type Option func(*FlowGrid)

// WithLogger sets the logger a FlowGrid reports to. The default
// is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *FlowGrid) { g.Log = l }
}

// WithCascadeInvalidation makes changes to rainfall and drainage links
// discard the cached flows of all affected downstream cells, so Flow
// always reflects the current state.
func WithCascadeInvalidation() Option {
	return func(g *FlowGrid) { g.cascade = true }
}

// NewFlowGrid creates the drainage network for the given elevation grid.
// All cells start with a rainfall of 1.
func NewFlowGrid(elevation *Grid, opts ...Option) (*FlowGrid, error) {
	if elevation == nil {
		return nil, fmt.Errorf("%w: nil elevation grid", ErrInvalidGrid)
	}
	g := &FlowGrid{
		Grid: elevation,
		Log:  logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(g)
	}
	n := elevation.Rows() * elevation.Cols()
	g.cells = make([]*Cell, n)
	g.flow = make([]float64, n)
	g.fresh = make([]bool, n)
	for r := 0; r < elevation.Rows(); r++ {
		for c := 0; c < elevation.Cols(); c++ {
			i := g.Index(r, c)
			g.cells[i] = &Cell{
				Point:     elevation.Position(r, c),
				Row:       r,
				Col:       c,
				Elevation: elevation.Get(r, c),
				Rainfall:  1,
				index:     i,
				down:      -1,
			}
		}
	}
	if err := g.setDownCells(); err != nil {
		return nil, err
	}
	return g, nil
}

// setDownCells links every cell to its lowest neighbor and records
// the pits in row-major order.
func (g *FlowGrid) setDownCells() error {
	for _, c := range g.cells {
		low, err := g.LowestNeighbor(c.Row, c.Col)
		if err != nil {
			return err
		}
		if g.cells[low].Elevation < c.Elevation {
			g.SetDownstream(c.index, low)
		} else {
			g.SetDownstream(c.index, -1)
			g.pits = append(g.pits, c.index)
		}
	}
	return nil
}

// Index returns the cell index of row r and column c.
func (g *FlowGrid) Index(r, c int) int { return r*g.Cols() + c }

// Len returns the number of cells in the grid.
func (g *FlowGrid) Len() int { return len(g.cells) }

// Cell returns the cell at row r and column c.
func (g *FlowGrid) Cell(r, c int) *Cell { return g.cells[g.Index(r, c)] }

// CellAt returns the cell at index i.
func (g *FlowGrid) CellAt(i int) *Cell { return g.cells[i] }

// Pits returns the indices of the cells that had no strictly lower
// neighbor when the grid was created, in row-major order. Filling lakes
// may give some of them a downstream cell.
func (g *FlowGrid) Pits() []int { return g.pits }

// Neighbors returns the indices of the in-bounds neighbors of the cell at
// row r and column c.
func (g *FlowGrid) Neighbors(r, c int) []int {
	o := make([]int, 0, len(neighborOffsets))
	for _, off := range neighborOffsets {
		nr, nc := r+off[0], c+off[1]
		if nr < 0 || nr >= g.Rows() || nc < 0 || nc >= g.Cols() {
			continue
		}
		o = append(o, g.Index(nr, nc))
	}
	return o
}

// LowestNeighbor returns the index of the neighbor of the cell at row r
// and column c with the lowest elevation. Ties go to the neighbor that is
// searched first.
func (g *FlowGrid) LowestNeighbor(r, c int) (int, error) {
	low := -1
	for _, n := range g.Neighbors(r, c) {
		if low < 0 || g.cells[n].Elevation < g.cells[low].Elevation {
			low = n
		}
	}
	if low < 0 {
		return -1, fmt.Errorf("%w: row %d, column %d", ErrNoNeighbors, r, c)
	}
	return low, nil
}

// AddRainfall sets the rainfall of every cell from rain, which must have
// the same shape as the grid.
func (g *FlowGrid) AddRainfall(rain [][]float64) error {
	if len(rain) != g.Rows() {
		return fmt.Errorf("%w: rainfall has %d rows but grid has %d", ErrShapeMismatch, len(rain), g.Rows())
	}
	for r, row := range rain {
		if len(row) != g.Cols() {
			return fmt.Errorf("%w: rainfall row %d has %d columns but grid has %d",
				ErrShapeMismatch, r, len(row), g.Cols())
		}
	}
	for r, row := range rain {
		for c, v := range row {
			g.SetRainfall(g.Index(r, c), v)
		}
	}
	return nil
}

// AddRainfallGrid is like AddRainfall but takes its values from a grid.
func (g *FlowGrid) AddRainfallGrid(rain *Grid) error {
	return g.AddRainfall(rain.Data())
}

// ExtractValues returns the value e selects for every cell, in the
// shape of the grid.
func (g *FlowGrid) ExtractValues(e Extractor) [][]float64 {
	o := make([][]float64, g.Rows())
	for r := range o {
		o[r] = make([]float64, g.Cols())
		for c := range o[r] {
			o[r][c] = e.Value(g, g.Index(r, c))
		}
	}
	return o
}

// MaxFlow returns the largest cached flow and the cell it occurs at.
// Ties go to the first cell in row-major order. Cells whose flow has not
// been calculated are ignored. If no cached flow is greater than zero,
// the returned cell is nil.
func (g *FlowGrid) MaxFlow() (float64, *Cell) {
	var max float64
	var maxCell *Cell
	for i, c := range g.cells {
		if g.fresh[i] && g.flow[i] > max {
			max = g.flow[i]
			maxCell = c
		}
	}
	return max, maxCell
}

// Check verifies the structure of the drainage network: pit and
// downstream links agree, every downstream link has a matching upstream
// link and the reverse, and following downstream links from any cell
// ends at a pit.
func (g *FlowGrid) Check() error {
	for i, c := range g.cells {
		if c.down >= 0 && !containsIndex(g.cells[c.down].up, i) {
			return fmt.Errorf("%w: %d drains to %d but is not upstream of it", ErrLinkSymmetry, i, c.down)
		}
		for _, u := range c.up {
			if g.cells[u].down != i {
				return fmt.Errorf("%w: %d is upstream of %d but drains to %d",
					ErrLinkSymmetry, u, i, g.cells[u].down)
			}
		}
	}
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]int8, len(g.cells))
	var path []int
	for i := range g.cells {
		path = path[:0]
		j := i
		for j >= 0 && state[j] == unvisited {
			state[j] = onPath
			path = append(path, j)
			j = g.cells[j].down
		}
		if j >= 0 && state[j] == onPath {
			return fmt.Errorf("%w: through cell %d", ErrCycle, j)
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}

func containsIndex(s []int, i int) bool {
	for _, v := range s {
		if v == i {
			return true
		}
	}
	return false
}
