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
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	pitColor  = color.NRGBA{R: 255, A: 255}
	lakeColor = color.NRGBA{B: 255, A: 255}
)

// gridXYZ presents an array of values on a grid as a plotter.GridXYZ.
type gridXYZ struct {
	g      *Grid
	values [][]float64
}

func (x gridXYZ) Dims() (c, r int)   { return x.g.Cols(), x.g.Rows() }
func (x gridXYZ) Z(c, r int) float64 { return x.values[r][c] }
func (x gridXYZ) X(c int) float64    { return x.g.X0 + float64(c)*x.g.CellSize }
func (x gridXYZ) Y(r int) float64    { return x.g.Y0 + float64(r)*x.g.CellSize }

// PlotGrid draws the values of g as a heat map.
func PlotGrid(g *Grid, title string) (*plot.Plot, error) {
	return heatMap(g, g.Data(), title)
}

func heatMap(g *Grid, values [][]float64, title string) (*plot.Plot, error) {
	if len(values) != g.Rows() {
		return nil, fmt.Errorf("%w: plot values have %d rows but grid has %d",
			ErrShapeMismatch, len(values), g.Rows())
	}
	for r, row := range values {
		if len(row) != g.Cols() {
			return nil, fmt.Errorf("%w: plot values row %d has %d columns but grid has %d",
				ErrShapeMismatch, r, len(row), g.Cols())
		}
	}
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	h := plotter.NewHeatMap(gridXYZ{g: g, values: values}, palette.Heat(64, 1))
	if h.Max == h.Min {
		h.Max++
	}
	p.Add(h)
	return p, nil
}

// Plot draws values, which must have the shape of the grid, as a heat
// map. If overlay is true, the pits are drawn in red, lake cells in blue,
// and the drainage network with one color per drainage tree.
func (g *FlowGrid) Plot(values [][]float64, title string, overlay bool) (*plot.Plot, error) {
	p, err := heatMap(g.Grid, values, title)
	if err != nil {
		return nil, err
	}
	if !overlay {
		return p, nil
	}
	p.Add(&networkPlotter{edges: g.Network()})

	var pits, lakes plotter.XYs
	for _, c := range g.cells {
		if c.lake {
			lakes = append(lakes, plotter.XYs{{X: c.X, Y: c.Y}}...)
		}
		if c.IsPit() {
			pits = append(pits, plotter.XYs{{X: c.X, Y: c.Y}}...)
		}
	}
	for _, layer := range []struct {
		xy    plotter.XYs
		color color.Color
		name  string
	}{
		{xy: lakes, color: lakeColor, name: "lake"},
		{xy: pits, color: pitColor, name: "pit"},
	} {
		if len(layer.xy) == 0 {
			continue
		}
		s, err := plotter.NewScatter(layer.xy)
		if err != nil {
			return nil, err
		}
		s.Color = layer.color
		s.Shape = draw.CircleGlyph{}
		s.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add(layer.name, s)
	}
	return p, nil
}

// SavePlot writes p to file. The format is chosen from the file
// extension.
func SavePlot(p *plot.Plot, file string) error {
	return p.Save(6*vg.Inch, 6*vg.Inch, file)
}

// networkPlotter draws drainage edges, colored by the pit they drain to.
type networkPlotter struct {
	edges []Edge
}

// Plot implements the plot.Plotter interface.
func (n *networkPlotter) Plot(c draw.Canvas, p *plot.Plot) {
	trX, trY := p.Transforms(&c)
	byRoot := make(map[int][][]vg.Point)
	var roots []int
	for _, e := range n.edges {
		if _, ok := byRoot[e.Root]; !ok {
			roots = append(roots, e.Root)
		}
		byRoot[e.Root] = append(byRoot[e.Root], []vg.Point{
			{X: trX(e.From.X), Y: trY(e.From.Y)},
			{X: trX(e.To.X), Y: trY(e.To.Y)},
		})
	}
	for i, r := range roots {
		sty := plotter.DefaultLineStyle
		sty.Color = plotutil.Color(i)
		sty.Width = vg.Points(0.5)
		c.StrokeLines(sty, byRoot[r]...)
	}
}

// DataRange implements the plot.DataRanger interface.
func (n *networkPlotter) DataRange() (xmin, xmax, ymin, ymax float64) {
	if len(n.edges) == 0 {
		return
	}
	xmin, xmax = n.edges[0].From.X, n.edges[0].From.X
	ymin, ymax = n.edges[0].From.Y, n.edges[0].From.Y
	for _, e := range n.edges {
		for _, pt := range []struct{ X, Y float64 }{{e.From.X, e.From.Y}, {e.To.X, e.To.Y}} {
			if pt.X < xmin {
				xmin = pt.X
			}
			if pt.X > xmax {
				xmax = pt.X
			}
			if pt.Y < ymin {
				ymin = pt.Y
			}
			if pt.Y > ymax {
				ymax = pt.Y
			}
		}
	}
	return
}
