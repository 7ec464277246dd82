package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/wallnav/internal/httputil"
	"github.com/banshee-data/wallnav/internal/nav"
)

// showTrajectory renders the driven path and the recorded waypoints as an
// HTML chart.
func (s *Server) showTrajectory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Trajectory == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "trajectory not recorded")
		return
	}
	status := s.deps.Loop.Status()
	chart := trajectoryChart(s.deps.Trajectory.Trajectory(), status.Waypoints, status.WallOffset)

	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render trajectory chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func trajectoryChart(traj []nav.Position, waypoints map[int]nav.Position, wallOffset float64) *charts.Line {
	maxAbs := 0.0
	track := func(p nav.Position) {
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}

	path := make([]opts.LineData, 0, len(traj))
	for _, p := range traj {
		track(p)
		path = append(path, opts.LineData{Value: []interface{}{p.X, p.Y}})
	}

	keys := make([]int, 0, len(waypoints))
	for k := range waypoints {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	marks := make([]opts.ScatterData, 0, len(keys))
	for _, k := range keys {
		p := waypoints[k]
		track(p)
		marks = append(marks, opts.ScatterData{Name: fmt.Sprintf("waypoint %d", k), Value: []interface{}{p.X, p.Y}})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "wallnav trajectory", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Trajectory", Subtitle: fmt.Sprintf("points=%d waypoints=%d wall_offset=%.2fm", len(path), len(marks), wallOffset)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	line.AddSeries("trajectory", path, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	scatter := charts.NewScatter()
	scatter.AddSeries("waypoints", marks, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	line.Overlap(scatter)
	return line
}
