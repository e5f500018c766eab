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
	"math"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/kr/pretty"
)

const testTolerance = 1.e-10

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

// mustGrid creates a grid with origin (0, 0) and a cell size of 1.
func mustGrid(t *testing.T, data [][]float64) *Grid {
	g, err := NewGrid(data, 0, 0, 1, DefaultNoData)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// sequence returns a rows×cols array with values 0, 1, 2, ... in row-major order.
func sequence(rows, cols int) [][]float64 {
	o := make([][]float64, rows)
	for r := range o {
		o[r] = make([]float64, cols)
		for c := range o[r] {
			o[r][c] = float64(r*cols + c)
		}
	}
	return o
}

func TestNewGridInvalid(t *testing.T) {
	for _, test := range []struct {
		name     string
		data     [][]float64
		cellSize float64
	}{
		{name: "nil", data: nil, cellSize: 1},
		{name: "empty row", data: [][]float64{{}}, cellSize: 1},
		{name: "ragged", data: [][]float64{{1, 2}, {3}}, cellSize: 1},
		{name: "zero cell size", data: [][]float64{{1, 2}}, cellSize: 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewGrid(test.data, 0, 0, test.cellSize, DefaultNoData)
			if !errors.Is(err, ErrInvalidGrid) {
				t.Errorf("have %v, want %v", err, ErrInvalidGrid)
			}
		})
	}
	if _, err := NewGridFromArray(sparse.ZerosDense(2, 2, 2), 0, 0, 1, 0); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("3-D array: have %v, want %v", err, ErrInvalidGrid)
	}
}

func TestGrid(t *testing.T) {
	data := sequence(3, 4)
	g, err := NewGrid(data, 10, 20, 2, DefaultNoData)
	if err != nil {
		t.Fatal(err)
	}
	if g.Rows() != 3 || g.Cols() != 4 {
		t.Errorf("shape: have %dx%d, want 3x4", g.Rows(), g.Cols())
	}
	if v := g.Get(2, 1); v != 9 {
		t.Errorf("Get(2, 1): have %g, want 9", v)
	}
	if p := g.Position(2, 1); p != (geom.Point{X: 12, Y: 24}) {
		t.Errorf("Position(2, 1): have %v, want {12 24}", p)
	}
	if p := g.Origin(); p != (geom.Point{X: 10, Y: 20}) {
		t.Errorf("Origin: have %v, want {10 20}", p)
	}
	if !reflect.DeepEqual(g.Data(), data) {
		t.Errorf("Data: %v", pretty.Diff(g.Data(), data))
	}

	// The grid must not share storage with its input or output.
	data[0][0] = 100
	g.Data()[0][1] = 100
	if g.Get(0, 0) != 0 || g.Get(0, 1) != 1 {
		t.Error("grid data was modified through a copy")
	}
}

func TestAggregate(t *testing.T) {
	g := mustGrid(t, sequence(4, 5))

	same, err := g.Aggregate(1)
	if err != nil {
		t.Fatal(err)
	}
	if same != g {
		t.Error("Aggregate(1) should return the receiver")
	}

	a, err := g.Aggregate(2)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{103, 105}, {113, 115}}
	if !reflect.DeepEqual(a.Data(), want) {
		t.Errorf("legacy aggregate: %v", pretty.Diff(a.Data(), want))
	}
	if a.CellSize != 1 {
		t.Errorf("legacy cell size: have %g, want 1", a.CellSize)
	}

	g2, err := NewGrid(sequence(4, 5), 0, 0, 3, DefaultNoData)
	if err != nil {
		t.Fatal(err)
	}
	m, err := g2.AggregateWith(2, MeanAggregate)
	if err != nil {
		t.Fatal(err)
	}
	want = [][]float64{{3, 5}, {13, 15}}
	if !reflect.DeepEqual(m.Data(), want) {
		t.Errorf("mean aggregate: %v", pretty.Diff(m.Data(), want))
	}
	if m.CellSize != 6 {
		t.Errorf("mean cell size: have %g, want 6", m.CellSize)
	}

	for _, f := range []int{0, -1, 5} {
		if _, err := g.Aggregate(f); !errors.Is(err, ErrInvalidGrid) {
			t.Errorf("factor %d: have %v, want %v", f, err, ErrInvalidGrid)
		}
	}
}
