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
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

func TestCheckOutputNames(t *testing.T) {
	for _, test := range []struct {
		name string
		ok   bool
	}{
		{name: "Flow", ok: true},
		{name: "LakeDepth2", ok: true},
		{name: "LakeDepth22", ok: false},
		{name: "2Flow", ok: false},
		{name: "Flow-1", ok: false},
	} {
		err := checkOutputNames(map[string]string{test.name: "Flow"})
		if (err == nil) != test.ok {
			t.Errorf("%s: have error %v, want ok=%v", test.name, err, test.ok)
		}
	}
}

func TestOutputterResults(t *testing.T) {
	g := mustFlowGrid(t, outletBasin)
	g.CalculateLakes()
	o, err := NewOutputter("", map[string]string{
		"Flow":    "Flow",
		"Depth":   "LakeDepth * 1000",
		"Wet":     "Lake > 0",
		"LogFlow": "log(Flow)",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Flow", "Lake", "LakeDepth"}
	if !reflect.DeepEqual(o.modelVariables, want) {
		t.Errorf("model variables: have %v, want %v", o.modelVariables, want)
	}
	r, err := o.Results(g)
	if err != nil {
		t.Fatal(err)
	}
	if r["Flow"][22] != 25 {
		t.Errorf("flow: have %g, want 25", r["Flow"][22])
	}
	if r["Depth"][12] != 4000 {
		t.Errorf("depth: have %g, want 4000", r["Depth"][12])
	}
	if r["Wet"][16] != 1 || r["Wet"][0] != 0 {
		t.Errorf("wet: have %g and %g, want 1 and 0", r["Wet"][16], r["Wet"][0])
	}
	if r["LogFlow"][24] != 0 {
		t.Errorf("log flow: have %g, want 0", r["LogFlow"][24])
	}

	bad, err := NewOutputter("", map[string]string{"X": "Concentration"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bad.Results(g); err == nil {
		t.Error("expected an error for an undefined variable")
	}
	if _, err := NewOutputter("", map[string]string{"X": "Flow +"}, nil); err == nil {
		t.Error("expected an error for an invalid expression")
	}
}

func TestOutput(t *testing.T) {
	dir, err := ioutil.TempDir("", "flowmap")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	o, err := NewOutputter(filepath.Join(dir, "out.shp"),
		map[string]string{"Flow": "Flow", "Elevation": "Elevation"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := &Model{
		InitFuncs:    []DomainManipulator{Route(mustGrid(t, slope(3, 4))), o.CheckOutputVars()},
		CleanupFuncs: []DomainManipulator{o.Output()},
	}
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	if err := m.Cleanup(); err != nil {
		t.Fatal(err)
	}

	d, err := shp.NewDecoder(filepath.Join(dir, "out.shp"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	var i int
	for {
		g, fields, more := d.DecodeRowFields("Flow", "Elevation")
		if !more {
			break
		}
		c := m.Grid.CellAt(i)
		elev, err := strconv.ParseFloat(fields["Elevation"], 64)
		if err != nil {
			t.Fatal(err)
		}
		if elev != c.Elevation {
			t.Errorf("cell %d elevation: have %g, want %g", i, elev, c.Elevation)
		}
		if b := g.Bounds(); b.Min != c.Point || b.Max != (geom.Point{X: c.X + 1, Y: c.Y + 1}) {
			t.Errorf("cell %d bounds: have %v", i, b)
		}
		i++
	}
	if err := d.Error(); err != nil {
		t.Fatal(err)
	}
	if i != 12 {
		t.Errorf("have %d records, want 12", i)
	}
}

func TestNetwork(t *testing.T) {
	g := mustFlowGrid(t, [][]float64{{1, 2, 3}, {9, 9, 9}})
	roots := g.Roots()
	for i, r := range roots {
		if r != 0 {
			t.Errorf("cell %d: have root %d, want 0", i, r)
		}
	}
	edges := g.Network()
	if len(edges) != g.Len()-1 {
		t.Errorf("have %d edges, want %d", len(edges), g.Len()-1)
	}
	for _, e := range edges {
		if g.CellAt(e.FromIndex).Downstream() != e.ToIndex {
			t.Errorf("edge %d -> %d does not match the network", e.FromIndex, e.ToIndex)
		}
	}

	g.Flow(0)
	b := new(bytes.Buffer)
	if err := g.WriteNetworkGeoJSON(b); err != nil {
		t.Fatal(err)
	}
	var fc struct {
		Type     string
		Features []struct {
			Geometry struct {
				Type string
			}
			Properties map[string]interface{}
		}
	}
	if err := json.Unmarshal(b.Bytes(), &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("type: have %s", fc.Type)
	}
	var lines, points int
	for _, f := range fc.Features {
		switch f.Geometry.Type {
		case "LineString":
			lines++
			if _, ok := f.Properties["flow"]; !ok {
				t.Error("edge is missing flow")
			}
		case "Point":
			points++
		}
	}
	if lines != 5 || points != 1 {
		t.Errorf("have %d lines and %d points, want 5 and 1", lines, points)
	}
}
