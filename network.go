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
	"encoding/json"
	"fmt"
	"io"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
)

// Edge is a drainage link from one cell to the cell it drains into.
type Edge struct {
	From, To   geom.Point
	FromIndex  int
	ToIndex    int
	Root       int     // index of the pit at the end of the drainage tree
	Flow       float64 // cached flow leaving FromIndex, if calculated
	flowCached bool
}

// Roots returns, for every cell, the index of the pit its water ends up in.
func (g *FlowGrid) Roots() []int {
	roots := make([]int, len(g.cells))
	for i := range roots {
		roots[i] = -1
	}
	var path []int
	for i := range g.cells {
		path = path[:0]
		j := i
		for roots[j] < 0 && g.cells[j].down >= 0 && len(path) <= len(g.cells) {
			path = append(path, j)
			j = g.cells[j].down
		}
		r := roots[j]
		if r < 0 {
			r = j
			roots[j] = j
		}
		for _, p := range path {
			roots[p] = r
		}
	}
	return roots
}

// Network returns every drainage link in the grid, in cell index order.
func (g *FlowGrid) Network() []Edge {
	roots := g.Roots()
	var edges []Edge
	for i, c := range g.cells {
		if c.down < 0 {
			continue
		}
		d := g.cells[c.down]
		f, ok := g.CachedFlow(i)
		edges = append(edges, Edge{
			From:       c.Point,
			To:         d.Point,
			FromIndex:  i,
			ToIndex:    c.down,
			Root:       roots[i],
			Flow:       f,
			flowCached: ok,
		})
	}
	return edges
}

type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Geometry   *geojson.Geometry      `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type geoJSONFeatureCollection struct {
	Type     string            `json:"type"`
	Features []*geoJSONFeature `json:"features"`
}

// WriteNetworkGeoJSON writes the drainage network to w as a GeoJSON
// feature collection of line strings. Pits are included as points.
func (g *FlowGrid) WriteNetworkGeoJSON(w io.Writer) error {
	fc := geoJSONFeatureCollection{Type: "FeatureCollection"}
	add := func(gg geom.Geom, props map[string]interface{}) error {
		geo, err := geojson.ToGeoJSON(gg)
		if err != nil {
			return fmt.Errorf("flowmap: encoding drainage network: %v", err)
		}
		fc.Features = append(fc.Features, &geoJSONFeature{
			Type:       "Feature",
			Geometry:   geo,
			Properties: props,
		})
		return nil
	}
	for _, e := range g.Network() {
		props := map[string]interface{}{
			"from": e.FromIndex,
			"to":   e.ToIndex,
			"root": e.Root,
		}
		if e.flowCached {
			props["flow"] = e.Flow
		}
		if err := add(geom.LineString{e.From, e.To}, props); err != nil {
			return err
		}
	}
	for _, p := range g.pits {
		c := g.cells[p]
		if !c.IsPit() {
			continue
		}
		props := map[string]interface{}{
			"pit":  p,
			"lake": c.lake,
		}
		if err := add(c.Point, props); err != nil {
			return err
		}
	}
	return json.NewEncoder(w).Encode(fc)
}
