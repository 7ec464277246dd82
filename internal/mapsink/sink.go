package mapsink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/wallnav/internal/fsutil"
	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/nav"
)

// Artifact file names written by Flush.
const (
	PlotFile  = "map.png"
	GridFile  = "map.txt"
	StateFile = "final_state.json"
)

const (
	// minStep is the distance a pose must move to extend the trajectory.
	minStep = 0.01
	// maxTrajectory bounds the kept trajectory; older points are thinned.
	maxTrajectory = 20000
)

// PlotSink implements nav.MapSink. It is safe for concurrent use: the bridge
// updates the grid, the control thread observes poses and the debug server
// reads the trajectory.
type PlotSink struct {
	fs  fsutil.FileSystem
	dir string

	mu         sync.Mutex
	grid       *Grid
	trajectory []nav.Position
}

// NewPlotSink writes artifacts into dir on fs.
func NewPlotSink(fs fsutil.FileSystem, dir string) *PlotSink {
	return &PlotSink{fs: fs, dir: dir}
}

// UpdateGrid replaces the latest occupancy grid.
func (s *PlotSink) UpdateGrid(g Grid) {
	s.mu.Lock()
	s.grid = &g
	s.mu.Unlock()
}

// Grid returns the latest grid, if any.
func (s *PlotSink) Grid() (Grid, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid == nil {
		return Grid{}, false
	}
	return *s.grid, true
}

// ObservePose extends the trajectory.
func (s *PlotSink) ObservePose(p nav.Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.trajectory); n > 0 {
		last := s.trajectory[n-1]
		if math.Hypot(p.Position.X-last.X, p.Position.Y-last.Y) < minStep {
			return
		}
	}
	if len(s.trajectory) >= maxTrajectory {
		thinned := s.trajectory[:0]
		for i := 0; i < len(s.trajectory); i += 2 {
			thinned = append(thinned, s.trajectory[i])
		}
		s.trajectory = thinned
	}
	s.trajectory = append(s.trajectory, p.Position)
}

// Trajectory returns a copy of the recorded positions.
func (s *PlotSink) Trajectory() []nav.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]nav.Position(nil), s.trajectory...)
}

type finalStateFile struct {
	WallOffset float64                 `json:"wall_offset"`
	Pose       *nav.Pose               `json:"pose,omitempty"`
	Waypoints  map[string]nav.Position `json:"waypoints"`
	Grid       *OccupancyCounts        `json:"grid,omitempty"`
	Points     int                     `json:"trajectory_points"`
}

// Flush writes the plot, the grid dump and the final state into the output
// directory.
func (s *PlotSink) Flush(final nav.FinalState) error {
	s.mu.Lock()
	grid := s.grid
	traj := append([]nav.Position(nil), s.trajectory...)
	s.mu.Unlock()

	if final.HasPose && (len(traj) == 0 || traj[len(traj)-1] != final.Pose.Position) {
		traj = append(traj, final.Pose.Position)
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create map output dir: %w", err)
	}

	png, err := renderPlot(grid, traj, final.Waypoints)
	if err != nil {
		return fmt.Errorf("render map plot: %w", err)
	}
	if err := s.fs.WriteFileAtomic(filepath.Join(s.dir, PlotFile), png, 0o644); err != nil {
		return fmt.Errorf("write map plot: %w", err)
	}

	state := finalStateFile{WallOffset: final.WallOffset, Waypoints: map[string]nav.Position{}, Points: len(traj)}
	if final.HasPose {
		state.Pose = &final.Pose
	}
	for k, p := range final.Waypoints {
		state.Waypoints[strconv.Itoa(k)] = p
	}
	if grid != nil {
		counts := grid.Counts()
		state.Grid = &counts
		if err := s.fs.WriteFileAtomic(filepath.Join(s.dir, GridFile), grid.Dump(), 0o644); err != nil {
			return fmt.Errorf("write grid dump: %w", err)
		}
	}
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := s.fs.WriteFileAtomic(filepath.Join(s.dir, StateFile), b, 0o644); err != nil {
		return fmt.Errorf("write final state: %w", err)
	}

	monitoring.Logf("Map artifacts written to %s (%d trajectory points, %d waypoints)", s.dir, len(traj), len(final.Waypoints))
	return nil
}

func renderPlot(grid *Grid, traj []nav.Position, waypoints map[int]nav.Position) ([]byte, error) {
	p := plot.New()
	p.Title.Text = "wallnav run"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	if grid != nil && grid.Width > 0 && grid.Height > 0 {
		hm := plotter.NewHeatMap(gridXYZ{*grid}, palette.Heat(12, 1))
		hm.NaN = color.Gray{Y: 200}
		hm.Min, hm.Max = 0, 100
		p.Add(hm)
	}

	if len(traj) > 0 {
		pts := make(plotter.XYs, len(traj))
		for i, pos := range traj {
			pts[i] = plotter.XY{X: pos.X, Y: pos.Y}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Width = vg.Points(1)
		line.Color = color.RGBA{B: 200, A: 255}
		p.Add(line)
		p.Legend.Add("trajectory", line)
	}

	if len(waypoints) > 0 {
		keys := make([]int, 0, len(waypoints))
		for k := range waypoints {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		pts := make(plotter.XYs, len(keys))
		labels := make([]string, len(keys))
		for i, k := range keys {
			pts[i] = plotter.XY{X: waypoints[k].X, Y: waypoints[k].Y}
			labels[i] = strconv.Itoa(k)
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add("waypoints", sc)

		lbl, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: labels})
		if err != nil {
			return nil, err
		}
		p.Add(lbl)
	}

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
