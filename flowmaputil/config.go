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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/flowmap"
	"github.com/spf13/cast"
)

// RunConfig holds the settings shared by the run, plot, and aggregate
// commands.
type RunConfig struct {
	Elevation, ElevationFormat, ElevationVariable string
	Rainfall, RainfallVariable                    string

	AggregateFactor     int
	LegacyAggregate     bool
	FillLakes           bool
	CascadeInvalidation bool
	RecomputeFlow       bool

	OutputFile      string
	OutputVariables map[string]string
	NetworkFile     string
	ReportFile      string
	PlotFile        string
	PlotVariable    flowmap.Extractor
	OpenPlot        bool

	LogFile string
	Verbose bool
}

// RunConfigFromViper reads and checks the run configuration.
func RunConfigFromViper(cfg *viper.Viper) (*RunConfig, error) {
	c := &RunConfig{
		Elevation:           os.ExpandEnv(cfg.GetString("Elevation")),
		ElevationFormat:     strings.ToLower(cfg.GetString("ElevationFormat")),
		ElevationVariable:   cfg.GetString("ElevationVariable"),
		Rainfall:            os.ExpandEnv(cfg.GetString("Rainfall")),
		RainfallVariable:    cfg.GetString("RainfallVariable"),
		AggregateFactor:     cfg.GetInt("AggregateFactor"),
		LegacyAggregate:     cfg.GetBool("LegacyAggregate"),
		FillLakes:           cfg.GetBool("FillLakes"),
		CascadeInvalidation: cfg.GetBool("CascadeInvalidation"),
		RecomputeFlow:       cfg.GetBool("RecomputeFlow"),
		NetworkFile:         os.ExpandEnv(cfg.GetString("NetworkFile")),
		ReportFile:          os.ExpandEnv(cfg.GetString("ReportFile")),
		PlotFile:            os.ExpandEnv(cfg.GetString("PlotFile")),
		OpenPlot:            cfg.GetBool("OpenPlot"),
		Verbose:             cfg.GetBool("Verbose"),
	}
	if c.Elevation == "" {
		return nil, fmt.Errorf(`flowmap: you need to specify an elevation raster (for example: Elevation="dem.asc")`)
	}
	switch c.ElevationFormat {
	case "", formatASCII, formatNetCDF:
	default:
		return nil, fmt.Errorf("flowmap: configuration variable ElevationFormat=%q but should be one of \"\", %q, or %q",
			c.ElevationFormat, formatASCII, formatNetCDF)
	}
	if c.AggregateFactor <= 0 {
		return nil, fmt.Errorf("flowmap: configuration variable AggregateFactor=%d but should be >0", c.AggregateFactor)
	}
	var err error
	c.OutputFile, err = checkOutputFile(cfg.GetString("OutputFile"))
	if err != nil {
		return nil, err
	}
	c.LogFile = checkLogFile(os.ExpandEnv(cfg.GetString("LogFile")), c.OutputFile)

	vars, err := GetStringMapString("OutputVariables", cfg)
	if err != nil {
		return nil, err
	}
	c.OutputVariables = checkOutputVars(vars)

	c.PlotVariable, err = flowmap.ParseExtractor(cfg.GetString("PlotVariable"))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RandomConfigFromViper reads the settings for the random command.
func RandomConfigFromViper(cfg *viper.Viper) (flowmap.RandomConfig, error) {
	c := flowmap.RandomConfig{
		Rows:        cfg.GetInt("Random.Rows"),
		Cols:        cfg.GetInt("Random.Cols"),
		CellSize:    cfg.GetFloat64("Random.CellSize"),
		X0:          cfg.GetFloat64("Random.X0"),
		Y0:          cfg.GetFloat64("Random.Y0"),
		NoData:      flowmap.DefaultNoData,
		Levels:      cfg.GetInt("Random.Levels"),
		High:        cfg.GetFloat64("Random.High"),
		Low:         cfg.GetFloat64("Random.Low"),
		XP:          cfg.GetInt("Random.XP"),
		YP:          cfg.GetInt("Random.YP"),
		RandPercent: cfg.GetFloat64("Random.RandPercent"),
		Seed:        int64(cfg.GetInt("Random.Seed")),
	}
	if c.CellSize <= 0 {
		return c, fmt.Errorf("flowmap: configuration variable Random.CellSize=%g but should be >0", c.CellSize)
	}
	if c.XP < 0 || c.XP >= c.Cols || c.YP < 0 || c.YP >= c.Rows {
		return c, fmt.Errorf("flowmap: low point (Random.YP=%d, Random.XP=%d) is outside of the %dx%d raster",
			c.YP, c.XP, c.Rows, c.Cols)
	}
	return c, nil
}

func checkOutputVars(vars map[string]string) map[string]string {
	o := make(map[string]string, len(vars))
	for k, v := range vars {
		o[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return o
}

// checkOutputFile makes sure the output file has been specified and that
// its directory exists.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.shp"`)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("flowmap: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile puts the log next to the output file unless a location is given.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return logFile
}

// GetStringMapString returns a map[string]string from the configuration,
// whether it was set from a configuration file, as a JSON string on the
// command line, or directly.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if err := json.NewDecoder(bytes.NewBufferString(v)).Decode(&o); err != nil {
			return nil, fmt.Errorf("flowmap: parsing configuration variable %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("flowmap: invalid type for configuration variable %s: %#v", varName, i)
	}
}

// Raster formats.
const (
	formatASCII  = "ascii"
	formatNetCDF = "netcdf"
)

// rasterFormat returns format, or the format implied by the extension of
// path if format is empty.
func rasterFormat(path, format string) string {
	if format != "" {
		return format
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".nc", ".ncf", ".cdf":
		return formatNetCDF
	}
	return formatASCII
}

// loadGrid reads the raster at path in the given format.
// variable names the NetCDF variable to read.
func loadGrid(path, format, variable string) (*flowmap.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("flowmap: opening raster: %v", err)
	}
	defer f.Close()
	if rasterFormat(path, format) == formatNetCDF {
		return flowmap.ReadNetCDF(f, variable)
	}
	return flowmap.ReadASCII(f)
}

// saveGrid writes g to path, choosing the format from its extension.
func saveGrid(path, variable string, g *flowmap.Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("flowmap: creating raster: %v", err)
	}
	if rasterFormat(path, "") == formatNetCDF {
		err = flowmap.WriteNetCDF(f, map[string]*flowmap.Grid{variable: g})
	} else {
		err = flowmap.WriteASCII(f, g)
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
