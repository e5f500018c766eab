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
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

func TestModel(t *testing.T) {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	rain, err := NewGrid(constant(5, 5, 2), 0, 0, 1, DefaultNoData)
	if err != nil {
		t.Fatal(err)
	}
	report := new(bytes.Buffer)
	tomlReport := new(bytes.Buffer)
	network := new(bytes.Buffer)
	var order []string
	mark := func(s string) DomainManipulator {
		return func(*Model) error {
			order = append(order, s)
			return nil
		}
	}
	m := &Model{
		InitFuncs: []DomainManipulator{
			Route(mustGrid(t, outletBasin)),
			mark("init"),
		},
		RunFuncs: []DomainManipulator{
			mark("run"),
			AddRainfall(rain),
			CalculateLakes(),
			CheckInvariants(),
			ResetFlow(),
			CalculateFlow(),
		},
		CleanupFuncs: []DomainManipulator{
			mark("cleanup"),
			Report(report, tomlReport),
			WriteNetwork(network),
		},
		Log: logger,
	}
	for _, f := range []func() error{m.Init, m.Run, m.Cleanup} {
		if err := f(); err != nil {
			t.Fatal(err)
		}
	}
	if s := strings.Join(order, ","); s != "init,run,cleanup" {
		t.Errorf("order: have %s", s)
	}

	want := "Maximum Flow is 50 mm per year at Flownode x=2, y=4\n"
	if report.String() != want {
		t.Errorf("report: have %q, want %q", report.String(), want)
	}
	var s Summary
	if _, err := toml.Decode(tomlReport.String(), &s); err != nil {
		t.Fatal(err)
	}
	wantSummary := Summary{Rows: 5, Cols: 5, Pits: 1, LakeCells: 2, TotalRainfall: 50,
		MaxFlow: 50, MaxFlowRow: 4, MaxFlowCol: 2, MaxFlowX: 2, MaxFlowY: 4}
	if s != wantSummary {
		t.Errorf("summary: have %+v, want %+v", s, wantSummary)
	}
	if network.Len() == 0 {
		t.Error("network was not written")
	}
}

func TestModelNoGrid(t *testing.T) {
	m := &Model{}
	if err := m.Init(); err == nil {
		t.Error("expected an error when no grid is created")
	}
}

func TestSummaryNoFlow(t *testing.T) {
	g := mustFlowGrid(t, slope(2, 2))
	if s := g.Summary().String(); s != "No flow has been calculated" {
		t.Errorf("have %q", s)
	}
}

func TestPlot(t *testing.T) {
	dir, err := ioutil.TempDir("", "flowmap")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	g := mustFlowGrid(t, outletBasin)
	g.CalculateLakes()
	for _, overlay := range []bool{false, true} {
		file := filepath.Join(dir, "flow.png")
		m := &Model{Grid: g, Log: logrus.New()}
		if err := SavePlotOf(FlowExtractor, file, overlay)(m); err != nil {
			t.Fatal(err)
		}
		fi, err := os.Stat(file)
		if err != nil {
			t.Fatal(err)
		}
		if fi.Size() == 0 {
			t.Errorf("overlay=%v: empty plot", overlay)
		}
		os.Remove(file)
	}

	// Uniform values must not break the color scale.
	p, err := PlotGrid(mustGrid(t, constant(3, 3, 1)), "flat")
	if err != nil {
		t.Fatal(err)
	}
	if err := SavePlot(p, filepath.Join(dir, "flat.png")); err != nil {
		t.Fatal(err)
	}

	if _, err := g.Plot(constant(2, 2, 0), "bad", false); err == nil {
		t.Error("expected an error for mismatched values")
	}
}

func TestExtractor(t *testing.T) {
	for _, e := range []Extractor{FlowExtractor, LakeDepthExtractor, ElevationExtractor, RainfallExtractor} {
		p, err := ParseExtractor(e.String())
		if err != nil {
			t.Fatal(err)
		}
		if p != e {
			t.Errorf("have %v, want %v", p, e)
		}
	}
	if _, err := ParseExtractor("Concentration"); err == nil {
		t.Error("expected an error for an unknown extractor")
	}
	g := mustFlowGrid(t, slope(2, 3))
	elev := g.ExtractValues(ElevationExtractor)
	if elev[1][2] != 3 {
		t.Errorf("elevation: have %g, want 3", elev[1][2])
	}
	if _, ok := g.CachedFlow(0); ok {
		t.Error("extracting elevation should not calculate flow")
	}
}

func TestPlotShapeMismatch(t *testing.T) {
	g := mustFlowGrid(t, constant(3, 3, 1))
	for _, test := range []struct {
		name   string
		values [][]float64
	}{
		{name: "nil", values: nil},
		{name: "rows", values: constant(2, 3, 1)},
		{name: "ragged", values: [][]float64{{1, 1, 1}, {1, 1}, {1, 1, 1}}},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := g.Plot(test.values, "x", false)
			if !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("have %v, want %v", err, ErrShapeMismatch)
			}
		})
	}
}
