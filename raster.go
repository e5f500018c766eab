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
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// ReadASCII reads a raster in ESRI ASCII grid format. The first data
// row in the file is the northernmost, so it becomes the last row of the
// returned grid.
func ReadASCII(r io.Reader) (*Grid, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	s.Split(bufio.ScanWords)

	header := map[string]float64{"nodata_value": DefaultNoData}
	var ncols, nrows int
	var first string
	for s.Scan() {
		key := strings.ToLower(s.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = key
			break
		}
		if !s.Scan() {
			break
		}
		v, err := strconv.ParseFloat(s.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("flowmap: reading ASCII raster header %s: %v", key, err)
		}
		header[key] = v
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("flowmap: reading ASCII raster: %v", err)
	}
	for _, k := range []string{"ncols", "nrows", "cellsize"} {
		if _, ok := header[k]; !ok {
			return nil, fmt.Errorf("%w: ASCII raster header is missing %s", ErrInvalidGrid, k)
		}
	}
	ncols, nrows = int(header["ncols"]), int(header["nrows"])
	if ncols <= 0 || nrows <= 0 {
		return nil, fmt.Errorf("%w: ASCII raster has shape %dx%d", ErrInvalidGrid, nrows, ncols)
	}
	x0, y0 := header["xllcorner"], header["yllcorner"]
	if v, ok := header["xllcenter"]; ok {
		x0 = v - header["cellsize"]/2
	}
	if v, ok := header["yllcenter"]; ok {
		y0 = v - header["cellsize"]/2
	}

	a := sparse.ZerosDense(nrows, ncols)
	n := 0
	parse := func(tok string) error {
		if n >= nrows*ncols {
			return fmt.Errorf("%w: ASCII raster has more than %d values", ErrInvalidGrid, nrows*ncols)
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("flowmap: reading ASCII raster value %d: %v", n, err)
		}
		fileRow, col := n/ncols, n%ncols
		a.Set(v, nrows-1-fileRow, col)
		n++
		return nil
	}
	if first != "" {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for s.Scan() {
		if err := parse(s.Text()); err != nil {
			return nil, err
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("flowmap: reading ASCII raster: %v", err)
	}
	if n != nrows*ncols {
		return nil, fmt.Errorf("%w: ASCII raster has %d values but header specifies %d",
			ErrInvalidGrid, n, nrows*ncols)
	}
	return NewGridFromArray(a, x0, y0, header["cellsize"], header["nodata_value"])
}

// WriteASCII writes g in ESRI ASCII grid format.
func WriteASCII(w io.Writer, g *Grid) error {
	b := bufio.NewWriter(w)
	fmt.Fprintf(b, "ncols %d\nnrows %d\nxllcorner %g\nyllcorner %g\ncellsize %g\nNODATA_value %g\n",
		g.Cols(), g.Rows(), g.X0, g.Y0, g.CellSize, g.NoData)
	for r := g.Rows() - 1; r >= 0; r-- {
		for c := 0; c < g.Cols(); c++ {
			if c > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.FormatFloat(g.Get(r, c), 'g', -1, 64))
		}
		b.WriteByte('\n')
	}
	return b.Flush()
}

// netCDF global attribute names.
const (
	ncX0       = "x0"
	ncY0       = "y0"
	ncCellSize = "cellsize"
	ncNoData   = "nodata"
)

// ReadNetCDF reads the two-dimensional variable v from a NetCDF file. The
// grid geometry is taken from the global attributes written by
// WriteNetCDF.
func ReadNetCDF(rw cdf.ReaderWriterAt, v string) (*Grid, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("flowmap: opening NetCDF raster: %v", err)
	}
	dims := f.Header.Lengths(v)
	if len(dims) != 2 {
		return nil, fmt.Errorf("%w: NetCDF variable %q has %d dimensions but should have 2",
			ErrInvalidGrid, v, len(dims))
	}
	attr := func(name string, def float64) (float64, error) {
		switch a := f.Header.GetAttribute("", name).(type) {
		case nil:
			return def, nil
		case []float64:
			return a[0], nil
		case []float32:
			return float64(a[0]), nil
		case []int32:
			return float64(a[0]), nil
		default:
			return 0, fmt.Errorf("flowmap: NetCDF attribute %s has unsupported type %T", name, a)
		}
	}
	var geo [4]float64
	for i, a := range []struct {
		name string
		def  float64
	}{{ncX0, 0}, {ncY0, 0}, {ncCellSize, 1}, {ncNoData, DefaultNoData}} {
		if geo[i], err = attr(a.name, a.def); err != nil {
			return nil, err
		}
	}

	r := f.Reader(v, nil, nil)
	buf := r.Zero(-1)
	if _, err = r.Read(buf); err != nil {
		return nil, fmt.Errorf("flowmap: reading NetCDF variable %q: %v", v, err)
	}
	a := sparse.ZerosDense(dims...)
	switch d := buf.(type) {
	case []float64:
		copy(a.Elements, d)
	case []float32:
		for i, e := range d {
			a.Elements[i] = float64(e)
		}
	case []int32:
		for i, e := range d {
			a.Elements[i] = float64(e)
		}
	case []int16:
		for i, e := range d {
			a.Elements[i] = float64(e)
		}
	default:
		return nil, fmt.Errorf("flowmap: NetCDF variable %q has unsupported type %T", v, buf)
	}
	return NewGridFromArray(a, geo[0], geo[1], geo[2], geo[3])
}

// WriteNetCDF writes the given grids, which must all have the same shape
// and geometry, as variables of a NetCDF file.
func WriteNetCDF(rw cdf.ReaderWriterAt, grids map[string]*Grid) error {
	if len(grids) == 0 {
		return fmt.Errorf("flowmap: no grids to write to NetCDF")
	}
	names := make([]string, 0, len(grids))
	for name := range grids {
		names = append(names, name)
	}
	sort.Strings(names)
	g0 := grids[names[0]]
	for _, name := range names[1:] {
		g := grids[name]
		if g.Rows() != g0.Rows() || g.Cols() != g0.Cols() || g.X0 != g0.X0 ||
			g.Y0 != g0.Y0 || g.CellSize != g0.CellSize {
			return fmt.Errorf("%w: grid %s does not match grid %s", ErrShapeMismatch, name, names[0])
		}
	}

	h := cdf.NewHeader([]string{"y", "x"}, []int{g0.Rows(), g0.Cols()})
	h.AddAttribute("", "comment", "Gridded overland flow data")
	h.AddAttribute("", ncX0, []float64{g0.X0})
	h.AddAttribute("", ncY0, []float64{g0.Y0})
	h.AddAttribute("", ncCellSize, []float64{g0.CellSize})
	h.AddAttribute("", ncNoData, []float64{g0.NoData})
	for _, name := range names {
		h.AddVariable(name, []string{"y", "x"}, []float64{0})
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("flowmap: invalid NetCDF header: %v", errs[0])
	}
	f, err := cdf.Create(rw, h)
	if err != nil {
		return fmt.Errorf("flowmap: creating NetCDF raster: %v", err)
	}
	for _, name := range names {
		w := f.Writer(name, nil, nil)
		elems := grids[name].data.Elements
		// The writer reports io.EOF once it reaches the end of the variable.
		n, err := w.Write(elems)
		if err != nil && err != io.EOF {
			return fmt.Errorf("flowmap: writing NetCDF variable %q: %v", name, err)
		}
		if n != len(elems) {
			return fmt.Errorf("flowmap: wrote %d of %d values of NetCDF variable %q", n, len(elems), name)
		}
	}
	return nil
}
