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
	"fmt"

	"github.com/ctessum/geom"
)

// Cell holds the routing state of a single grid cell. Cells are owned
// by a FlowGrid and refer to each other by their index in it.
type Cell struct {
	geom.Point // Cell location

	Row, Col int

	Elevation float64

	// Rainfall is the water added to the network at this cell.
	Rainfall float64

	// LakeDepth is the depth of the filled depression at this cell,
	// or 0 if the cell is not part of a lake.
	LakeDepth float64

	index int
	lake  bool
	down  int   // -1 if the cell is a pit
	up    []int // cells that drain into this one
}

// Index returns the position of c in its FlowGrid.
func (c *Cell) Index() int { return c.index }

// Downstream returns the index of the cell that c drains into, or -1
// if c is a pit.
func (c *Cell) Downstream() int { return c.down }

// Upstream returns the indices of the cells that drain directly into c.
// The returned slice must not be modified.
func (c *Cell) Upstream() []int { return c.up }

// IsPit returns whether c has no downstream cell.
func (c *Cell) IsPit() bool { return c.down < 0 }

// InLake returns whether c has been absorbed into a filled depression.
func (c *Cell) InLake() bool { return c.lake }

func (c *Cell) String() string {
	return fmt.Sprintf("Flownode x=%g, y=%g", c.X, c.Y)
}

// deleteIndexFromSlice removes the first occurrence of i from s.
func deleteIndexFromSlice(i int, s *[]int) {
	a := *s
	for j, v := range a {
		if v == i {
			a[j] = a[len(a)-1]
			a = a[:len(a)-1]
			break
		}
	}
	*s = a
}

// SetDownstream makes cell i drain into cell target, or makes i a pit
// if target < 0. It is the only way links between cells are changed and
// it keeps the upstream lists consistent with the downstream links.
func (g *FlowGrid) SetDownstream(i, target int) {
	c := g.cells[i]
	if c.down == target {
		return
	}
	if c.down >= 0 {
		old := g.cells[c.down]
		deleteIndexFromSlice(i, &old.up)
		if g.cascade {
			g.invalidate(old.index)
		}
	}
	c.down = target
	if target >= 0 {
		t := g.cells[target]
		t.up = append(t.up, i)
		if g.cascade {
			g.invalidate(target)
		}
	}
}

// SetRainfall sets the rainfall at cell i and discards its cached flow.
// Unless the grid was created WithCascadeInvalidation, cached flows of
// the cells downstream of i are kept and may be stale until ResetFlow
// is called.
func (g *FlowGrid) SetRainfall(i int, v float64) {
	g.cells[i].Rainfall = v
	if g.cascade {
		g.invalidate(i)
		return
	}
	g.fresh[i] = false
}

// invalidate discards the cached flow of cell i and every cell downstream
// of it.
func (g *FlowGrid) invalidate(i int) {
	for n := 0; i >= 0 && n < len(g.cells); n++ {
		g.fresh[i] = false
		i = g.cells[i].down
	}
}

// Flow returns the total water passing through cell i: its own rainfall
// plus the flow of every cell upstream of it. Results are cached.
func (g *FlowGrid) Flow(i int) float64 {
	if g.fresh[i] {
		return g.flow[i]
	}
	type frame struct {
		cell, next int
		sum        float64
	}
	stack := []frame{{cell: i, sum: g.cells[i].Rainfall}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		up := g.cells[f.cell].up
		if f.next < len(up) {
			u := up[f.next]
			if g.fresh[u] {
				f.sum += g.flow[u]
				f.next++
				continue
			}
			stack = append(stack, frame{cell: u, sum: g.cells[u].Rainfall})
			continue
		}
		done := *f
		stack = stack[:len(stack)-1]
		g.flow[done.cell] = done.sum
		g.fresh[done.cell] = true
		if len(stack) > 0 {
			p := &stack[len(stack)-1]
			p.sum += done.sum
			p.next++
		}
	}
	return g.flow[i]
}

// CachedFlow returns the cached flow at cell i and whether it has been
// calculated.
func (g *FlowGrid) CachedFlow(i int) (float64, bool) {
	return g.flow[i], g.fresh[i]
}

// ResetFlow discards all cached flows.
func (g *FlowGrid) ResetFlow() {
	for i := range g.fresh {
		g.fresh[i] = false
	}
}
