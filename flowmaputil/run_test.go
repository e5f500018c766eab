/*
Copyright © 2017 the flowmap authors.
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

package flowmaputil

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/spatialmodel/flowmap"
)

// setRunDefaults points the global configuration at the test basin and
// writes all output to dir.
func setRunDefaults(dir string) {
	Cfg.Set("config", "")
	Cfg.Set("Elevation", "testdata/basin.asc")
	Cfg.Set("Rainfall", "testdata/rain.asc")
	Cfg.Set("ElevationFormat", "")
	Cfg.Set("ElevationVariable", "Elevation")
	Cfg.Set("AggregateFactor", 1)
	Cfg.Set("LegacyAggregate", true)
	Cfg.Set("FillLakes", true)
	Cfg.Set("RecomputeFlow", true)
	Cfg.Set("CascadeInvalidation", false)
	Cfg.Set("OutputFile", filepath.Join(dir, "out.shp"))
	Cfg.Set("OutputVariables", map[string]string{"Flow": "Flow", "Depth": "LakeDepth", "Pit": "Pit"})
	Cfg.Set("NetworkFile", filepath.Join(dir, "network.geojson"))
	Cfg.Set("ReportFile", filepath.Join(dir, "report.toml"))
	Cfg.Set("PlotFile", "")
	Cfg.Set("PlotVariable", "Flow")
	Cfg.Set("OpenPlot", false)
	Cfg.Set("LogFile", "")
}

func TestRun(t *testing.T) {
	dir, err := ioutil.TempDir("", "flowmap")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	setRunDefaults(dir)

	out := new(bytes.Buffer)
	Root.SetOutput(out)
	defer Root.SetOutput(nil)
	Root.SetArgs([]string{"run"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}

	const want = "Maximum Flow is 50 mm per year at Flownode x=2, y=4"
	if !strings.Contains(out.String(), want) {
		t.Errorf("output %q does not contain %q", out.String(), want)
	}

	for _, f := range []string{"out.shp", "out.dbf", "out.log", "network.geojson", "report.toml"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("missing output: %v", err)
		}
	}

	var s flowmap.Summary
	if _, err := toml.DecodeFile(filepath.Join(dir, "report.toml"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Pits != 1 || s.LakeCells != 2 || s.TotalRainfall != 50 {
		t.Errorf("summary: %+v", s)
	}

	b, err := ioutil.ReadFile(filepath.Join(dir, "network.geojson"))
	if err != nil {
		t.Fatal(err)
	}
	var fc struct {
		Type     string
		Features []json.RawMessage
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		t.Fatal(err)
	}
	// 24 drainage edges plus the remaining pit.
	if fc.Type != "FeatureCollection" || len(fc.Features) != 25 {
		t.Errorf("network: type %s with %d features", fc.Type, len(fc.Features))
	}

	log, err := ioutil.ReadFile(filepath.Join(dir, "out.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(log), "flowmap completed normally") {
		t.Errorf("log file is incomplete: %s", log)
	}
}

func TestRunBadRainfall(t *testing.T) {
	dir, err := ioutil.TempDir("", "flowmap")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	setRunDefaults(dir)

	rain := filepath.Join(dir, "rain.asc")
	g, err := flowmap.NewGrid([][]float64{{1, 1}, {1, 1}}, 0, 0, 1, flowmap.DefaultNoData)
	if err != nil {
		t.Fatal(err)
	}
	if err := saveGrid(rain, "Rainfall", g); err != nil {
		t.Fatal(err)
	}
	Cfg.Set("Rainfall", rain)

	Root.SetOutput(ioutil.Discard)
	defer Root.SetOutput(nil)
	Root.SetArgs([]string{"run"})
	if err := Root.Execute(); err == nil {
		t.Error("mismatched rainfall should cause an error")
	}
}

func TestRandomAndAggregate(t *testing.T) {
	dir, err := ioutil.TempDir("", "flowmap")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	setRunDefaults(dir)

	random := filepath.Join(dir, "random.nc")
	Cfg.Set("Random.OutputFile", random)
	Cfg.Set("Random.Rows", 8)
	Cfg.Set("Random.Cols", 6)
	Cfg.Set("Random.CellSize", 1.0)
	Cfg.Set("Random.XP", 0)
	Cfg.Set("Random.YP", 0)
	Cfg.Set("Random.Levels", 4)
	Cfg.Set("Random.Seed", 2)

	out := new(bytes.Buffer)
	Root.SetOutput(out)
	defer Root.SetOutput(nil)
	Root.SetArgs([]string{"random"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}

	Cfg.Set("Elevation", random)
	Cfg.Set("AggregateFactor", 2)
	Cfg.Set("LegacyAggregate", false)
	agg := filepath.Join(dir, "agg.asc")
	Cfg.Set("OutputFile", agg)
	Root.SetArgs([]string{"aggregate"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}

	g, err := loadGrid(agg, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if g.Rows() != 4 || g.Cols() != 3 {
		t.Errorf("aggregated shape: have %dx%d, want 4x3", g.Rows(), g.Cols())
	}
	if g.CellSize != 2 {
		t.Errorf("aggregated cell size: have %g, want 2", g.CellSize)
	}

	Cfg.Set("OutputFile", filepath.Join(dir, "agg.shp"))
	if err := Root.Execute(); err == nil {
		t.Error("aggregating to a shapefile should cause an error")
	}
}

func TestPlotCmd(t *testing.T) {
	dir, err := ioutil.TempDir("", "flowmap")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	setRunDefaults(dir)
	plotFile := filepath.Join(dir, "flow.png")
	Cfg.Set("PlotFile", plotFile)

	Root.SetOutput(ioutil.Discard)
	defer Root.SetOutput(nil)
	Root.SetArgs([]string{"plot"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(plotFile); err != nil || fi.Size() == 0 {
		t.Errorf("plot was not written: %v", err)
	}
}

func TestVersion(t *testing.T) {
	out := new(bytes.Buffer)
	Root.SetOutput(out)
	defer Root.SetOutput(nil)
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "flowmap v" + flowmap.Version + "\n"; out.String() != want {
		t.Errorf("have %q, want %q", out.String(), want)
	}
}
