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
	"io"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// Version gives the version number.
const Version = "1.0.0"

// Model holds the state of a flow routing run.
type Model struct {
	// Grid is the drainage network. It is created by one of the
	// InitFuncs.
	Grid *FlowGrid

	// InitFuncs are functions to be called in the given order
	// at the beginning of the run.
	InitFuncs []DomainManipulator

	// RunFuncs are functions to be called in the given order
	// after initialization.
	RunFuncs []DomainManipulator

	// CleanupFuncs are functions to be called in the given order
	// after the run is finished.
	CleanupFuncs []DomainManipulator

	// Log receives progress messages. If nil, the logrus standard
	// logger is used.
	Log logrus.FieldLogger
}

// DomainManipulator is a function that changes the state of a Model.
type DomainManipulator func(m *Model) error

func (m *Model) run(funcs []DomainManipulator) error {
	if m.Log == nil {
		m.Log = logrus.StandardLogger()
	}
	for _, f := range funcs {
		if err := f(m); err != nil {
			return err
		}
	}
	return nil
}

// Init initializes the model by running m.InitFuncs.
func (m *Model) Init() error {
	if err := m.run(m.InitFuncs); err != nil {
		return err
	}
	if m.Grid == nil {
		return fmt.Errorf("flowmap: no grid was created during initialization")
	}
	return nil
}

// Run carries out the run by calling m.RunFuncs.
func (m *Model) Run() error { return m.run(m.RunFuncs) }

// Cleanup finishes the run by calling m.CleanupFuncs.
func (m *Model) Cleanup() error { return m.run(m.CleanupFuncs) }

// Route creates the drainage network for the given elevation grid.
func Route(elevation *Grid, opts ...Option) DomainManipulator {
	return func(m *Model) error {
		opts := append([]Option{WithLogger(m.Log)}, opts...)
		g, err := NewFlowGrid(elevation, opts...)
		if err != nil {
			return err
		}
		m.Grid = g
		m.Log.WithFields(logrus.Fields{
			"rows": g.Rows(),
			"cols": g.Cols(),
			"pits": len(g.Pits()),
		}).Info("created drainage network")
		return nil
	}
}

// AddRainfall sets the rainfall in every cell from rain.
func AddRainfall(rain *Grid) DomainManipulator {
	return func(m *Model) error {
		if err := m.Grid.AddRainfallGrid(rain); err != nil {
			return err
		}
		m.Log.Info("added rainfall")
		return nil
	}
}

// CalculateLakes fills depressions in the drainage network.
func CalculateLakes() DomainManipulator {
	return func(m *Model) error {
		r := m.Grid.CalculateLakes()
		m.Log.WithFields(logrus.Fields{
			"filled":    len(r.Filled),
			"skipped":   len(r.Skipped),
			"noOutlet":  len(r.NoOutlet),
			"lakeCells": r.LakeCells,
		}).Info("filled lakes")
		return nil
	}
}

// ResetFlow discards all cached flows so they are recalculated from the
// current state.
func ResetFlow() DomainManipulator {
	return func(m *Model) error {
		m.Grid.ResetFlow()
		return nil
	}
}

// CheckInvariants returns an error if the drainage network is
// inconsistent.
func CheckInvariants() DomainManipulator {
	return func(m *Model) error { return m.Grid.Check() }
}

// CalculateFlow calculates the flow in every cell.
func CalculateFlow() DomainManipulator {
	return func(m *Model) error {
		for i := 0; i < m.Grid.Len(); i++ {
			m.Grid.Flow(i)
		}
		return nil
	}
}

// Summary holds the main results of a run.
type Summary struct {
	Rows, Cols    int
	Pits          int
	LakeCells     int
	TotalRainfall float64
	MaxFlow       float64
	MaxFlowRow    int
	MaxFlowCol    int
	MaxFlowX      float64
	MaxFlowY      float64
}

// Summary summarizes the current state of the grid. The maximum flow is
// taken from the cached flows.
func (g *FlowGrid) Summary() Summary {
	s := Summary{Rows: g.Rows(), Cols: g.Cols(), MaxFlowRow: -1, MaxFlowCol: -1}
	for _, c := range g.cells {
		if c.IsPit() {
			s.Pits++
		}
		if c.lake {
			s.LakeCells++
		}
		s.TotalRainfall += c.Rainfall
	}
	var max *Cell
	s.MaxFlow, max = g.MaxFlow()
	if max != nil {
		s.MaxFlowRow, s.MaxFlowCol = max.Row, max.Col
		s.MaxFlowX, s.MaxFlowY = max.X, max.Y
	}
	return s
}

func (s Summary) String() string {
	if s.MaxFlowRow < 0 {
		return "No flow has been calculated"
	}
	return fmt.Sprintf("Maximum Flow is %g mm per year at Flownode x=%g, y=%g",
		s.MaxFlow, s.MaxFlowX, s.MaxFlowY)
}

// Report writes a summary of the run to w, and optionally as TOML to
// tomlOut if it is not nil.
func Report(w, tomlOut io.Writer) DomainManipulator {
	return func(m *Model) error {
		s := m.Grid.Summary()
		if w != nil {
			fmt.Fprintln(w, s)
		}
		if tomlOut != nil {
			if err := toml.NewEncoder(tomlOut).Encode(s); err != nil {
				return fmt.Errorf("flowmap: writing report: %v", err)
			}
		}
		return nil
	}
}

// WriteNetwork writes the drainage network to w as GeoJSON.
func WriteNetwork(w io.Writer) DomainManipulator {
	return func(m *Model) error { return m.Grid.WriteNetworkGeoJSON(w) }
}

// SavePlotOf renders the values e selects to file, with the network
// overlay if overlay is true.
func SavePlotOf(e Extractor, file string, overlay bool) DomainManipulator {
	return func(m *Model) error {
		p, err := m.Grid.Plot(m.Grid.ExtractValues(e), e.String(), overlay)
		if err != nil {
			return err
		}
		if err := SavePlot(p, file); err != nil {
			return fmt.Errorf("flowmap: saving plot: %v", err)
		}
		m.Log.WithField("file", file).Info("saved plot")
		return nil
	}
}
