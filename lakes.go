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
	"container/heap"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// LakeReport summarizes a CalculateLakes pass.
type LakeReport struct {
	// Filled holds the pits that were given an outlet.
	Filled []int

	// Skipped holds the pits that were not processed, either because
	// they are on the grid edge or because they already drain.
	Skipped []int

	// NoOutlet holds the pits whose depression covered every reachable
	// cell without finding an outlet.
	NoOutlet []int

	// LakeCells is the number of cells flagged as lake after the pass.
	LakeCells int
}

// CalculateLakes fills the depression around every interior pit, in the
// order the pits were found. Each depression grows from its pit by
// absorbing the lowest neighboring cell until that cell is one water
// can leave through: it is not already upstream of the depression and
// is not part of another lake. The pit is then routed to that outlet and
// every absorbed cell gets a lake depth equal to the highest elevation in
// the depression minus its own elevation.
//
// Pits on the grid edge drain off the grid and are skipped, as are pits
// that already have an outlet, so calling CalculateLakes again does not
// change the result.
func (g *FlowGrid) CalculateLakes() LakeReport {
	var rep LakeReport
	for _, p := range g.pits {
		c := g.cells[p]
		if len(g.Neighbors(c.Row, c.Col)) < len(neighborOffsets) || !c.IsPit() {
			rep.Skipped = append(rep.Skipped, p)
			continue
		}
		if g.growLake(p) {
			rep.Filled = append(rep.Filled, p)
		} else {
			rep.NoOutlet = append(rep.NoOutlet, p)
		}
	}
	for _, c := range g.cells {
		if c.lake {
			rep.LakeCells++
		}
	}
	return rep
}

// growLake grows the depression around pit p and routes p to its
// outlet. It returns false if no outlet exists, in which case the grid
// is left as it was.
func (g *FlowGrid) growLake(p int) bool {
	var flagged []int
	flag := func(i int) {
		if !g.cells[i].lake {
			g.cells[i].lake = true
			flagged = append(flagged, i)
		}
	}

	inLake := map[int]bool{}
	seen := map[int]bool{p: true}
	var lake []int
	q := &candidateQueue{}
	add := func(i int) {
		flag(i)
		inLake[i] = true
		lake = append(lake, i)
		c := g.cells[i]
		for k, n := range g.Neighbors(c.Row, c.Col) {
			if seen[n] {
				continue
			}
			seen[n] = true
			heap.Push(q, candidate{
				index:     n,
				elevation: g.cells[n].Elevation,
				member:    len(lake) - 1,
				order:     k,
			})
		}
	}
	add(p)

	for {
		if q.Len() == 0 {
			for _, i := range flagged {
				g.cells[i].lake = false
			}
			c := g.cells[p]
			g.Log.WithFields(logrus.Fields{
				"row":   c.Row,
				"col":   c.Col,
				"cells": len(lake),
			}).Warn("depression has no outlet; leaving pit undrained")
			return false
		}
		next := heap.Pop(q).(candidate).index
		c := g.cells[next]
		upstream := c.down >= 0 && inLake[c.down]
		if !upstream && !c.lake && !g.drainsTo(next, p) {
			g.SetDownstream(p, next)
			break
		}
		add(next)
	}

	elev := make([]float64, len(lake))
	for i, m := range lake {
		elev[i] = g.cells[m].Elevation
	}
	top := floats.Max(elev)
	for i, m := range lake {
		g.cells[m].LakeDepth = top - elev[i]
	}
	return true
}

// drainsTo returns whether water leaving cell i reaches cell target.
func (g *FlowGrid) drainsTo(i, target int) bool {
	for n := 0; i >= 0 && n <= len(g.cells); n++ {
		if i == target {
			return true
		}
		i = g.cells[i].down
	}
	return false
}

// candidate is a cell bordering a growing depression. Candidates are
// ordered by elevation, then by the order in which a scan over the
// depression members and their neighbors would first reach them.
type candidate struct {
	index     int
	elevation float64
	member    int // position of the first adjacent depression member
	order     int // neighbor position relative to that member
}

type candidateQueue []candidate

func (q candidateQueue) Len() int { return len(q) }
func (q candidateQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.elevation != b.elevation {
		return a.elevation < b.elevation
	}
	if a.member != b.member {
		return a.member < b.member
	}
	return a.order < b.order
}
func (q candidateQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *candidateQueue) Push(x interface{}) { *q = append(*q, x.(candidate)) }
func (q *candidateQueue) Pop() interface{} {
	old := *q
	x := old[len(old)-1]
	*q = old[:len(old)-1]
	return x
}
