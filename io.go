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
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
)

// OutputOptions returns the names, descriptions, and units of the
// per-cell variables that can be used in output expressions.
func (g *FlowGrid) OutputOptions() (names []string, descriptions []string, units []string) {
	for _, v := range cellVariables {
		names = append(names, v.name)
		descriptions = append(descriptions, v.desc)
		units = append(units, v.units)
	}
	return
}

var cellVariables = []struct {
	name, desc, units string
	value             func(g *FlowGrid, c *Cell) float64
}{
	{"Elevation", "Ground elevation", "m", func(_ *FlowGrid, c *Cell) float64 { return c.Elevation }},
	{"Rainfall", "Water added at the cell", "mm/year", func(_ *FlowGrid, c *Cell) float64 { return c.Rainfall }},
	{"Flow", "Accumulated flow through the cell", "mm/year", func(g *FlowGrid, c *Cell) float64 { return g.Flow(c.index) }},
	{"LakeDepth", "Depth of the filled depression", "m", func(_ *FlowGrid, c *Cell) float64 { return c.LakeDepth }},
	{"Pit", "1 if the cell has no downstream cell", "-", func(_ *FlowGrid, c *Cell) float64 { return boolFloat(c.IsPit()) }},
	{"Lake", "1 if the cell is part of a lake", "-", func(_ *FlowGrid, c *Cell) float64 { return boolFloat(c.lake) }},
	{"Row", "Row index", "-", func(_ *FlowGrid, c *Cell) float64 { return float64(c.Row) }},
	{"Col", "Column index", "-", func(_ *FlowGrid, c *Cell) float64 { return float64(c.Col) }},
	{"X", "X coordinate", "m", func(_ *FlowGrid, c *Cell) float64 { return c.X }},
	{"Y", "Y coordinate", "m", func(_ *FlowGrid, c *Cell) float64 { return c.Y }},
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Outputter writes per-cell results to a shapefile.
//
// outputVariables maps the names of the output fields to expressions of
// the variables listed by OutputOptions and the output functions.
type Outputter struct {
	fileName        string
	outputVariables map[string]string
	modelVariables  []string
	outputFunctions map[string]govaluate.ExpressionFunction
	expressions     map[string]*govaluate.EvaluableExpression
}

// NewOutputter initializes a new Outputter and adds a set of default
// output functions: 'exp(x)', 'log(x)', 'abs(x)', 'sqrt(x)', and
// 'max(x, y)'.
func NewOutputter(fileName string, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	oneArg := func(name string, f func(float64) float64) govaluate.ExpressionFunction {
		return func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("flowmap: got %d arguments for function '%s', but needs 1", len(arg), name)
			}
			return f(arg[0].(float64)), nil
		}
	}
	funcs := map[string]govaluate.ExpressionFunction{
		"exp":  oneArg("exp", math.Exp),
		"log":  oneArg("log", math.Log),
		"abs":  oneArg("abs", math.Abs),
		"sqrt": oneArg("sqrt", math.Sqrt),
		"max": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 2 {
				return nil, fmt.Errorf("flowmap: got %d arguments for function 'max', but needs 2", len(arg))
			}
			return math.Max(arg[0].(float64), arg[1].(float64)), nil
		},
	}
	for key, val := range outputFunctions {
		funcs[key] = val
	}
	if err := checkOutputNames(outputVariables); err != nil {
		return nil, err
	}

	o := &Outputter{
		fileName:        fileName,
		outputVariables: outputVariables,
		outputFunctions: funcs,
		expressions:     make(map[string]*govaluate.EvaluableExpression),
	}
	for name, expr := range outputVariables {
		e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, funcs)
		if err != nil {
			return nil, fmt.Errorf("flowmap: parsing output variable %s: %v", name, err)
		}
		o.expressions[name] = e
		o.modelVariables = append(o.modelVariables, e.Vars()...)
	}
	o.modelVariables = removeDuplicates(o.modelVariables)
	sort.Strings(o.modelVariables)
	return o, nil
}

// removeDuplicates returns the unique strings in s, in their original
// order.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]bool)
	for _, val := range s {
		if !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}

// checkOutputNames checks that output names fit in a shapefile field:
// at most 10 characters, starting with a letter.
func checkOutputNames(o map[string]string) error {
	valid := regexp.MustCompile(`^[A-Za-z]\w*$`)
	for key := range o {
		long := len(key) > 10
		ok := valid.MatchString(key)
		switch {
		case long && !ok:
			return fmt.Errorf("flowmap: output variable name '%s' exceeds 10 characters and includes unsupported character(s)", key)
		case long:
			return fmt.Errorf("flowmap: output variable name '%s' exceeds 10 characters", key)
		case !ok:
			return fmt.Errorf("flowmap: output variable name '%s' includes unsupported characters", key)
		}
	}
	return nil
}

// checkModelVars checks that every variable used in the output
// expressions is available.
func (o *Outputter) checkModelVars() error {
	known := make(map[string]bool)
	for _, v := range cellVariables {
		known[v.name] = true
	}
	for _, v := range o.modelVariables {
		if !known[v] {
			return fmt.Errorf("flowmap: undefined variable name '%s'", v)
		}
	}
	return nil
}

// Results evaluates the output expressions for every cell. The returned
// values are in cell index order.
func (o *Outputter) Results(g *FlowGrid) (map[string][]float64, error) {
	if err := o.checkModelVars(); err != nil {
		return nil, err
	}
	results := make(map[string][]float64, len(o.expressions))
	for name := range o.expressions {
		results[name] = make([]float64, len(g.cells))
	}
	params := make(map[string]interface{}, len(cellVariables))
	for i, c := range g.cells {
		for _, v := range cellVariables {
			params[v.name] = v.value(g, c)
		}
		for name, e := range o.expressions {
			r, err := e.Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("flowmap: evaluating output variable %s: %v", name, err)
			}
			switch v := r.(type) {
			case float64:
				results[name][i] = v
			case bool:
				results[name][i] = boolFloat(v)
			default:
				return nil, fmt.Errorf("flowmap: output variable %s has non-numeric value %v", name, r)
			}
		}
	}
	return results, nil
}

// CheckOutputVars ensures the output variables can be calculated.
func (o *Outputter) CheckOutputVars() DomainManipulator {
	return func(m *Model) error {
		return o.checkModelVars()
	}
}

// cellPolygon returns the square covering cell c.
func (g *FlowGrid) cellPolygon(c *Cell) geom.Polygon {
	d := g.CellSize
	return geom.Polygon{{
		{X: c.X, Y: c.Y},
		{X: c.X + d, Y: c.Y},
		{X: c.X + d, Y: c.Y + d},
		{X: c.X, Y: c.Y + d},
		{X: c.X, Y: c.Y},
	}}
}

// Output writes the output variables for every cell to a shapefile.
func (o *Outputter) Output() DomainManipulator {
	return func(m *Model) error {
		results, err := o.Results(m.Grid)
		if err != nil {
			return err
		}
		vars := make([]string, 0, len(results))
		for v := range results {
			vars = append(vars, v)
		}
		sort.Strings(vars)
		fields := make([]goshp.Field, len(vars))
		for i, v := range vars {
			fields[i] = goshp.FloatField(v, 14, 8)
		}

		// remove extension and replace it with .shp
		fileBase := strings.TrimSuffix(o.fileName, filepath.Ext(o.fileName))
		o.fileName = fileBase + ".shp"
		shape, err := shp.NewEncoderFromFields(o.fileName, goshp.POLYGON, fields...)
		if err != nil {
			return fmt.Errorf("flowmap: creating output shapefile: %v", err)
		}
		defer shape.Close()
		for i, c := range m.Grid.cells {
			vals := make([]interface{}, len(vars))
			for j, v := range vars {
				vals[j] = results[v][i]
			}
			if err = shape.EncodeFields(m.Grid.cellPolygon(c), vals...); err != nil {
				return fmt.Errorf("flowmap: writing output shapefile: %v", err)
			}
		}
		m.Log.WithField("file", o.fileName).Info("wrote cell output")
		return nil
	}
}
