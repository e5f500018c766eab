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
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"

	"github.com/ctessum/gobra"
	"github.com/lnashier/viper"
	"github.com/skratchdot/open-golang/open"
	"github.com/spatialmodel/flowmap"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds the settings of every command.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	gridFlags := []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags(), aggregateCmd.Flags()}

	// Options are the configuration options available to flowmap.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config is the path of a file to read settings from.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Elevation",
			usage: `
              Elevation is the path to the input elevation raster. Files ending
              in .nc or .ncf are read as NetCDF; anything else is read as
              an ESRI ASCII grid. It can include environment variables.`,
			shorthand:  "e",
			defaultVal: "",
			flagsets:   gridFlags,
		},
		{
			name: "ElevationFormat",
			usage: `
              ElevationFormat is the format of the elevation raster: "ascii" or
              "netcdf". If empty, the format is chosen from the file extension.`,
			defaultVal: "",
			flagsets:   gridFlags,
		},
		{
			name: "ElevationVariable",
			usage: `
              ElevationVariable is the name of the elevation variable when
              Elevation is a NetCDF file.`,
			defaultVal: "Elevation",
			flagsets:   gridFlags,
		},
		{
			name: "Rainfall",
			usage: `
              Rainfall is the path to a raster of rainfall rates. It must have the
              same shape as the elevation raster, either before or after
              aggregation. If empty, every cell receives a rainfall of 1.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "RainfallVariable",
			usage: `
              RainfallVariable is the name of the rainfall variable when
              Rainfall is a NetCDF file.`,
			defaultVal: "Rainfall",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "AggregateFactor",
			usage: `
              AggregateFactor is the number of input cells along each side of the
              blocks that are averaged together before routing. 1 means no aggregation.`,
			shorthand:  "a",
			defaultVal: 1,
			flagsets:   gridFlags,
		},
		{
			name: "LegacyAggregate",
			usage: `
              LegacyAggregate specifies whether aggregated elevations are shifted up
              by 100 and given a cell size of 1, as in earlier versions. If false,
              aggregation is a plain block mean.`,
			defaultVal: true,
			flagsets:   gridFlags,
		},
		{
			name: "FillLakes",
			usage: `
              FillLakes specifies whether depressions should be filled and their
              pits routed to an outlet.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CascadeInvalidation",
			usage: `
              CascadeInvalidation specifies whether changing the rainfall or drainage
              of a cell should discard the cached flows of all cells downstream of it.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "RecomputeFlow",
			usage: `
              RecomputeFlow specifies whether all flows should be recalculated after
              the drainage network is final.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is where per-cell results are written as a shapefile (for
              run) or where the aggregated raster is written (for aggregate).`,
			shorthand:  "o",
			defaultVal: "flowmap_output.shp",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies which variables should be included in the
              output file, in the form OutputVariables={"name":"expression"}. Available
              variables are Elevation, Rainfall, Flow, LakeDepth, Pit, Lake, Row, Col, X,
              and Y. Names can be at most 10 characters long.`,
			defaultVal: map[string]string{
				"Elevation": "Elevation",
				"Rainfall":  "Rainfall",
				"Flow":      "Flow",
				"LakeDepth": "LakeDepth",
				"Pit":       "Pit",
			},
			flagsets: []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "NetworkFile",
			usage: `
              NetworkFile is the path where the drainage network should be written as
              GeoJSON. If empty, the network is not written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ReportFile",
			usage: `
              ReportFile is the path where a TOML summary of the run should be written.
              If empty, the summary is only printed.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PlotFile",
			usage: `
              PlotFile is the path of an image of the results. The format is chosen
              from the extension (for example .png or .pdf). If empty, no plot is made.`,
			shorthand:  "p",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "PlotVariable",
			usage: `
              PlotVariable is the variable to plot: Flow, LakeDepth, Elevation, or Rainfall.`,
			defaultVal: "Flow",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "OpenPlot",
			usage: `
              OpenPlot specifies whether the plot should be opened in the default viewer
              once it is written.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is where the run log is written. If empty, it is written next
              to OutputFile with a .log extension.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Verbose",
			usage: `
              Verbose specifies whether debugging messages should be logged.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Random.OutputFile",
			usage: `
              Random.OutputFile is the path where the generated raster is written.`,
			defaultVal: "random.asc",
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.Rows",
			usage: `
              Random.Rows is the number of rows in the generated raster.`,
			defaultVal: 100,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.Cols",
			usage: `
              Random.Cols is the number of columns in the generated raster.`,
			defaultVal: 100,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.CellSize",
			usage: `
              Random.CellSize is the cell edge length of the generated raster.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.X0",
			usage: `
              Random.X0 is the X coordinate of the generated raster origin.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.Y0",
			usage: `
              Random.Y0 is the Y coordinate of the generated raster origin.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.Levels",
			usage: `
              Random.Levels is the number of elevation bands in the generated raster.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.High",
			usage: `
              Random.High is the highest elevation of the underlying slope.`,
			defaultVal: 100.0,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.Low",
			usage: `
              Random.Low is the lowest elevation of the underlying slope.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.XP",
			usage: `
              Random.XP is the column the slope descends towards.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.YP",
			usage: `
              Random.YP is the row the slope descends towards.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.RandPercent",
			usage: `
              Random.RandPercent is the amplitude of the noise added to each cell,
              as a percentage of the elevation range.`,
			defaultVal: 10.0,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
		{
			name: "Random.Seed",
			usage: `
              Random.Seed seeds the random number generator.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{randomCmd.Flags()},
		},
	}

	Cfg = viper.New()

	Cfg.SetEnvPrefix("FLOWMAP")

	for _, option := range options {
		flag := defineFlag(option.flagsets[0], option.name, option.shorthand, option.usage, option.defaultVal)
		for _, set := range option.flagsets[1:] {
			set.AddFlag(flag)
		}
		Cfg.BindPFlag(option.name, flag)
	}
}

// defineFlag adds a flag of the type of defaultVal to set. Map values
// are passed on the command line as JSON.
func defineFlag(set *pflag.FlagSet, name, shorthand, usage string, defaultVal interface{}) *pflag.Flag {
	switch v := defaultVal.(type) {
	case string:
		set.StringP(name, shorthand, v, usage)
	case bool:
		set.BoolP(name, shorthand, v, usage)
	case int:
		set.IntP(name, shorthand, v, usage)
	case float64:
		set.Float64P(name, shorthand, v, usage)
	case map[string]string:
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		set.StringP(name, shorthand, string(b), usage)
	default:
		panic(fmt.Errorf("flowmap: option %s has unsupported type %T", name, defaultVal))
	}
	return set.Lookup(name)
}

func init() {
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(randomCmd)
	Root.AddCommand(plotCmd)
	Root.AddCommand(aggregateCmd)
}

// setConfig reads the file named by the config option, if any.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("flowmap: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the flowmap command. Its subcommands do the work.
var Root = &cobra.Command{
	Use:   "flowmap",
	Short: "Overland flow routing on gridded elevation data.",
	Long: `flowmap routes rainfall across a gridded elevation surface. Each cell
drains to its lowest neighbor, depressions are filled to find their outlets,
and the accumulated flow is reported for every cell.

Settings come from, in increasing order of priority: the defaults listed in
each subcommand's help, a TOML, YAML, or JSON file named with --config,
environment variables named FLOWMAP_<option>, and command-line flags.
Paths may refer to environment variables, for example ${HOME}/dem.asc.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the flowmap version",
	Long:  "version prints the release of flowmap that is installed.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("flowmap v%s\n", flowmap.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd is a command that routes flow and writes the results.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Route rainfall across an elevation raster.",
	Long: `run builds the drainage network for the elevation raster, adds rainfall,
fills depressions, and writes the accumulated flow and lake depths to
OutputFile. The maximum flow is printed at the end of the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := RunConfigFromViper(Cfg)
		if err != nil {
			return err
		}
		return Run(cmd, cfg)
	},
	DisableAutoGenTag: true,
}

// randomCmd is a command that writes a synthetic elevation raster.
var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "Create a random sloped elevation raster.",
	Long: `random creates an elevation raster that slopes down towards the cell at
(Random.YP, Random.XP) in Random.Levels bands, with random noise added, and
writes it to Random.OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := RandomConfigFromViper(Cfg)
		if err != nil {
			return err
		}
		return Random(cmd, cfg, Cfg.GetString("Random.OutputFile"))
	},
	DisableAutoGenTag: true,
}

// plotCmd is a command that renders an elevation raster.
var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Plot a variable without writing other output.",
	Long: `plot builds the drainage network for the elevation raster and renders
PlotVariable, with pits, lakes, and drainage edges drawn on top, to PlotFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := RunConfigFromViper(Cfg)
		if err != nil {
			return err
		}
		return Plot(cmd, cfg)
	},
	DisableAutoGenTag: true,
}

// aggregateCmd is a command that writes an aggregated raster.
var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate an elevation raster.",
	Long: `aggregate averages blocks of AggregateFactor × AggregateFactor cells of
the elevation raster and writes the result to OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := RunConfigFromViper(Cfg)
		if err != nil {
			return err
		}
		return Aggregate(cmd, cfg)
	},
	DisableAutoGenTag: true,
}

// guiAddress is where the browser interface is served.
const guiAddress = "localhost:7171"

// guiPage wraps the form gobra generates for the command tree.
var guiPage = template.Must(template.New("gui").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>flowmap</title>
<style>
body { font-family: sans-serif; max-width: 760px; margin: 2em auto; }
div[id^="gobra-"] blockquote { color: #444; font-size: 80%; margin: .2em 1em; }
div[id^="gobra-"] input { font-family: monospace; width: 55%; }
input.invalid { border: 1px solid #b22; }
</style>
</head>
<body>
<h1>flowmap</h1>
<p>Choose a command, set its options, and press run. Entering the path of a
configuration file in the <code>config</code> field loads the settings it contains.</p>
{{.}}
<script>
const fields = Array.from(document.querySelectorAll("[data-name]"));
const cfg = fields.find(f => f.dataset.name === "config").children[0];
cfg.addEventListener("change", async () => {
	const res = await fetch("/config?file=" + encodeURIComponent(cfg.value));
	cfg.classList.toggle("invalid", !res.ok);
	if (!res.ok) return;
	const values = await res.json();
	for (const f of fields) {
		if (f.dataset.name in values) {
			f.children[0].value = JSON.stringify(values[f.dataset.name]).replace(/^"|"$/g, "");
		}
	}
});
</script>
</body>
</html>`))

// configHandler loads the configuration file named in the request and
// responds with the resulting value of every option.
func configHandler(w http.ResponseWriter, r *http.Request) {
	Cfg.Set("config", r.URL.Query().Get("file"))
	if err := setConfig(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	values := make(map[string]interface{}, len(options))
	for _, o := range options {
		values[o.name] = Cfg.Get(o.name)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(values); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// StartWebServer serves a browser interface to the command tree and
// opens it in the default browser. It does not return unless the server
// fails.
func StartWebServer() {
	if err := setConfig(); err != nil {
		log.Println(err)
	}
	for _, cmd := range Root.Commands() {
		cmd.SilenceUsage = true
	}
	Root.SilenceUsage = true

	http.HandleFunc("/config", configHandler)
	server := gobra.Server{Root: Root, ServerAddress: guiAddress, AllowCORS: false, HTML: guiPage}

	url := "http://" + guiAddress
	if err := open.Run(url); err != nil {
		fmt.Println("Open " + url + " in a browser to continue.")
	}
	log.Println("serving flowmap at " + url)
	server.Start()
}
