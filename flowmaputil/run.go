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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"github.com/spatialmodel/flowmap"
	"github.com/spf13/cobra"
)

// newLogger returns a logger that writes to w, at debug level if
// verbose is true.
func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	l := logrus.New()
	l.Out = w
	l.Formatter = &logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		TimestampFormat:  time.RFC3339,
		DisableSorting:   true,
		QuoteEmptyFields: true,
	}
	if verbose {
		l.Level = logrus.DebugLevel
	}
	return l
}

// loadInputs reads the elevation and rainfall rasters and aggregates them
// as configured. rain is nil if no rainfall raster was given.
func loadInputs(cfg *RunConfig, log logrus.FieldLogger) (elev, rain *flowmap.Grid, err error) {
	log.WithField("file", cfg.Elevation).Info("loading elevation")
	raw, err := loadGrid(cfg.Elevation, cfg.ElevationFormat, cfg.ElevationVariable)
	if err != nil {
		return nil, nil, err
	}
	elev, err = aggregate(raw, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AggregateFactor > 1 {
		log.WithFields(logrus.Fields{
			"factor": cfg.AggregateFactor,
			"rows":   elev.Rows(),
			"cols":   elev.Cols(),
		}).Info("aggregated elevation")
	}
	if cfg.Rainfall == "" {
		return elev, nil, nil
	}
	log.WithField("file", cfg.Rainfall).Info("loading rainfall")
	rain, err = loadGrid(cfg.Rainfall, "", cfg.RainfallVariable)
	if err != nil {
		return nil, nil, err
	}
	// Rainfall given at the input resolution is averaged onto the routing grid.
	if cfg.AggregateFactor > 1 && rain.Rows() == raw.Rows() && rain.Cols() == raw.Cols() {
		rain, err = rain.AggregateWith(cfg.AggregateFactor, flowmap.MeanAggregate)
		if err != nil {
			return nil, nil, err
		}
	}
	return elev, rain, nil
}

func aggregate(g *flowmap.Grid, cfg *RunConfig) (*flowmap.Grid, error) {
	if cfg.LegacyAggregate {
		return g.AggregateWith(cfg.AggregateFactor, flowmap.LegacyAggregate)
	}
	return g.AggregateWith(cfg.AggregateFactor, flowmap.MeanAggregate)
}

func routeOptions(cfg *RunConfig) []flowmap.Option {
	if cfg.CascadeInvalidation {
		return []flowmap.Option{flowmap.WithCascadeInvalidation()}
	}
	return nil
}

// Run routes rainfall over the configured elevation raster, fills
// depressions, and writes the results. Progress is logged to the
// command's output and to cfg.LogFile.
func Run(cmd *cobra.Command, cfg *RunConfig) error {
	startTime := time.Now()

	logfile, err := os.Create(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("flowmap: problem creating log file: %v", err)
	}
	defer logfile.Close()
	log := newLogger(io.MultiWriter(cmd.OutOrStdout(), logfile), cfg.Verbose)

	o, err := flowmap.NewOutputter(cfg.OutputFile, cfg.OutputVariables, nil)
	if err != nil {
		return err
	}

	elev, rain, err := loadInputs(cfg, log)
	if err != nil {
		return err
	}

	m := &flowmap.Model{
		InitFuncs: []flowmap.DomainManipulator{
			flowmap.Route(elev, routeOptions(cfg)...),
			o.CheckOutputVars(),
		},
		Log: log,
	}
	if rain != nil {
		m.RunFuncs = append(m.RunFuncs, flowmap.AddRainfall(rain))
	}
	if cfg.FillLakes {
		m.RunFuncs = append(m.RunFuncs, flowmap.CalculateLakes())
	}
	if cfg.RecomputeFlow {
		m.RunFuncs = append(m.RunFuncs, flowmap.ResetFlow())
	}
	m.RunFuncs = append(m.RunFuncs, flowmap.CalculateFlow(), flowmap.CheckInvariants())

	m.CleanupFuncs = []flowmap.DomainManipulator{o.Output()}

	if cfg.NetworkFile != "" {
		f, err := os.Create(cfg.NetworkFile)
		if err != nil {
			return fmt.Errorf("flowmap: creating network file: %v", err)
		}
		defer f.Close()
		m.CleanupFuncs = append(m.CleanupFuncs, flowmap.WriteNetwork(f))
	}
	if cfg.PlotFile != "" {
		m.CleanupFuncs = append(m.CleanupFuncs, flowmap.SavePlotOf(cfg.PlotVariable, cfg.PlotFile, true))
	}

	var report bytes.Buffer
	var tomlOut io.Writer
	if cfg.ReportFile != "" {
		f, err := os.Create(cfg.ReportFile)
		if err != nil {
			return fmt.Errorf("flowmap: creating report file: %v", err)
		}
		defer f.Close()
		tomlOut = f
	}
	m.CleanupFuncs = append(m.CleanupFuncs, flowmap.Report(&report, tomlOut))

	if err = m.Init(); err != nil {
		return err
	}
	if err = m.Run(); err != nil {
		return err
	}
	if err = m.Cleanup(); err != nil {
		return err
	}
	cmd.Print(report.String())

	if cfg.OpenPlot && cfg.PlotFile != "" {
		if err := open.Run(cfg.PlotFile); err != nil {
			log.WithError(err).Warn("could not open plot")
		}
	}
	log.WithField("elapsed", time.Since(startTime).Round(time.Millisecond)).Info("flowmap completed normally")
	return nil
}

// Plot renders cfg.PlotVariable for the configured elevation raster to
// cfg.PlotFile without writing any other output.
func Plot(cmd *cobra.Command, cfg *RunConfig) error {
	if cfg.PlotFile == "" {
		return fmt.Errorf(`flowmap: you need to specify a plot file (for example: PlotFile="flow.png")`)
	}
	log := newLogger(cmd.OutOrStdout(), cfg.Verbose)
	elev, _, err := loadInputs(&RunConfig{
		Elevation:         cfg.Elevation,
		ElevationFormat:   cfg.ElevationFormat,
		ElevationVariable: cfg.ElevationVariable,
		AggregateFactor:   cfg.AggregateFactor,
		LegacyAggregate:   cfg.LegacyAggregate,
	}, log)
	if err != nil {
		return err
	}
	m := &flowmap.Model{
		InitFuncs: []flowmap.DomainManipulator{flowmap.Route(elev)},
		RunFuncs: []flowmap.DomainManipulator{
			flowmap.CalculateLakes(),
			flowmap.CalculateFlow(),
		},
		CleanupFuncs: []flowmap.DomainManipulator{
			flowmap.SavePlotOf(cfg.PlotVariable, cfg.PlotFile, true),
		},
		Log: log,
	}
	for _, f := range []func() error{m.Init, m.Run, m.Cleanup} {
		if err := f(); err != nil {
			return err
		}
	}
	if cfg.OpenPlot {
		return open.Run(cfg.PlotFile)
	}
	return nil
}

// Aggregate writes the aggregated elevation raster to cfg.OutputFile.
// The format is chosen from the file extension.
func Aggregate(cmd *cobra.Command, cfg *RunConfig) error {
	if strings.ToLower(filepath.Ext(cfg.OutputFile)) == ".shp" {
		return fmt.Errorf("flowmap: aggregate writes a raster but OutputFile is %s; use a .asc or .nc file", cfg.OutputFile)
	}
	g, err := loadGrid(cfg.Elevation, cfg.ElevationFormat, cfg.ElevationVariable)
	if err != nil {
		return err
	}
	agg, err := aggregate(g, cfg)
	if err != nil {
		return err
	}
	if err := saveGrid(cfg.OutputFile, cfg.ElevationVariable, agg); err != nil {
		return err
	}
	cmd.Printf("wrote %dx%d raster to %s\n", agg.Rows(), agg.Cols(), cfg.OutputFile)
	return nil
}

// Random writes a synthetic sloped elevation raster to file.
func Random(cmd *cobra.Command, cfg flowmap.RandomConfig, file string) error {
	g, err := flowmap.RandomSlope(cfg)
	if err != nil {
		return err
	}
	if err := saveGrid(os.ExpandEnv(file), "Elevation", g); err != nil {
		return err
	}
	cmd.Printf("wrote %dx%d raster to %s\n", g.Rows(), g.Cols(), file)
	return nil
}
