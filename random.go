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
	"math/rand"

	"github.com/ctessum/sparse"
)

// RandomConfig holds the parameters for generating a synthetic sloped
// elevation surface.
type RandomConfig struct {
	Rows, Cols int
	CellSize   float64
	X0, Y0     float64
	NoData     float64

	// Levels is the number of elevation bands between Low and High.
	// If Levels < 2 the slope is continuous.
	Levels int

	// High and Low are the elevation range of the sloped surface.
	High, Low float64

	// XP and YP are the column and row the surface slopes down towards.
	XP, YP int

	// RandPercent is the amplitude of the random noise added to each
	// cell as a percentage of High-Low.
	RandPercent float64

	// Seed seeds the random number generator.
	Seed int64
}

// RandomSlope returns an elevation grid that rises with distance from
// the cell at (cfg.YP, cfg.XP), quantized into cfg.Levels bands and
// perturbed with uniform noise.
func RandomSlope(cfg RandomConfig) (*Grid, error) {
	if cfg.Rows <= 0 || cfg.Cols <= 0 {
		return nil, fmt.Errorf("%w: random raster shape %dx%d", ErrInvalidGrid, cfg.Rows, cfg.Cols)
	}
	if cfg.High < cfg.Low {
		return nil, fmt.Errorf("flowmap: random raster High (%g) is less than Low (%g)", cfg.High, cfg.Low)
	}
	if cfg.RandPercent < 0 {
		return nil, fmt.Errorf("flowmap: random raster RandPercent=%g but should be >=0", cfg.RandPercent)
	}
	rnd := rand.New(rand.NewSource(cfg.Seed))

	corners := [][2]int{{0, 0}, {0, cfg.Cols - 1}, {cfg.Rows - 1, 0}, {cfg.Rows - 1, cfg.Cols - 1}}
	var maxDist float64
	for _, c := range corners {
		maxDist = math.Max(maxDist, math.Hypot(float64(c[0]-cfg.YP), float64(c[1]-cfg.XP)))
	}
	if maxDist == 0 {
		maxDist = 1
	}

	span := cfg.High - cfg.Low
	noise := span * cfg.RandPercent / 100
	a := sparse.ZerosDense(cfg.Rows, cfg.Cols)
	for r := 0; r < cfg.Rows; r++ {
		for c := 0; c < cfg.Cols; c++ {
			frac := math.Hypot(float64(r-cfg.YP), float64(c-cfg.XP)) / maxDist
			if cfg.Levels > 1 {
				frac = math.Floor(frac*float64(cfg.Levels-1)+0.5) / float64(cfg.Levels-1)
			}
			v := cfg.Low + frac*span + (rnd.Float64()*2-1)*noise
			a.Set(v, r, c)
		}
	}
	return NewGridFromArray(a, cfg.X0, cfg.Y0, cfg.CellSize, cfg.NoData)
}
