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

import "fmt"

// Extractor selects a per-cell quantity from a FlowGrid.
type Extractor int

const (
	// FlowExtractor selects the accumulated flow.
	FlowExtractor Extractor = iota

	// LakeDepthExtractor selects the filled lake depth.
	LakeDepthExtractor

	// ElevationExtractor selects the cell elevation.
	ElevationExtractor

	// RainfallExtractor selects the rainfall added at the cell.
	RainfallExtractor
)

var extractorNames = map[Extractor]string{
	FlowExtractor:      "Flow",
	LakeDepthExtractor: "LakeDepth",
	ElevationExtractor: "Elevation",
	RainfallExtractor:  "Rainfall",
}

// Value returns the quantity e selects for cell i of g. Selecting the
// flow calculates and caches it if necessary.
func (e Extractor) Value(g *FlowGrid, i int) float64 {
	switch e {
	case FlowExtractor:
		return g.Flow(i)
	case LakeDepthExtractor:
		return g.cells[i].LakeDepth
	case ElevationExtractor:
		return g.cells[i].Elevation
	case RainfallExtractor:
		return g.cells[i].Rainfall
	default:
		panic(fmt.Errorf("flowmap: invalid extractor %d", int(e)))
	}
}

func (e Extractor) String() string {
	if s, ok := extractorNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Extractor(%d)", int(e))
}

// ParseExtractor returns the extractor with the given name.
func ParseExtractor(name string) (Extractor, error) {
	for e, s := range extractorNames {
		if s == name {
			return e, nil
		}
	}
	return 0, fmt.Errorf("flowmap: unknown extractor %q; valid options are Flow, LakeDepth, Elevation, and Rainfall", name)
}
