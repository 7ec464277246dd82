// Package mapsink collects the occupancy grid, trajectory and waypoints of a
// run and writes them out as map artifacts when the run ends.
package mapsink

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/wallnav/internal/nav"
)

// Grid is an occupancy grid in row-major order. Cells hold -1 for unknown or
// an occupancy probability from 0 to 100.
type Grid struct {
	Width      int
	Height     int
	Resolution float64 // metres per cell
	Origin     nav.Position
	Cells      []int8
}

// At returns the cell at column c, row r.
func (g Grid) At(c, r int) int8 { return g.Cells[r*g.Width+c] }

// occupancyDividers bin cells into unknown, free and occupied.
var occupancyDividers = []float64{-1, 0, 100, 101}

// OccupancyCounts are the cell totals of a grid.
type OccupancyCounts struct {
	Unknown  int `json:"unknown"`
	Free     int `json:"free"`
	Occupied int `json:"occupied"`
	Total    int `json:"total"`
}

// Counts bins the cells into unknown, free and occupied.
func (g Grid) Counts() OccupancyCounts {
	if len(g.Cells) == 0 {
		return OccupancyCounts{}
	}
	values := make([]float64, len(g.Cells))
	for i, c := range g.Cells {
		values[i] = math.Max(-1, math.Min(100, float64(c)))
	}
	slices.Sort(values)
	h := stat.Histogram(nil, occupancyDividers, values, nil)
	return OccupancyCounts{
		Unknown:  int(h[0]),
		Free:     int(h[1]),
		Occupied: int(h[2]),
		Total:    len(g.Cells),
	}
}

// Dump renders the grid as text, one row per line, with every cell shifted
// up by one so unknown cells read 0.
func (g Grid) Dump() []byte {
	var buf bytes.Buffer
	for r := 0; r < g.Height; r++ {
		for c := 0; c < g.Width; c++ {
			if c > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(strconv.Itoa(int(g.At(c, r)) + 1))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d @ %.2fm", g.Width, g.Height, g.Resolution)
}

// gridXYZ adapts a Grid to plotter.GridXYZ in world coordinates.
type gridXYZ struct{ g Grid }

func (x gridXYZ) Dims() (c, r int) { return x.g.Width, x.g.Height }

func (x gridXYZ) Z(c, r int) float64 {
	v := x.g.At(c, r)
	if v < 0 {
		return math.NaN()
	}
	return float64(v)
}

func (x gridXYZ) X(c int) float64 {
	return x.g.Origin.X + (float64(c)+0.5)*x.g.Resolution
}

func (x gridXYZ) Y(r int) float64 {
	return x.g.Origin.Y + (float64(r)+0.5)*x.g.Resolution
}
