// Package api serves the operator's view of a running robot: a JSON state
// snapshot, a trajectory chart and the /debug/ routes of the link and DB.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/wallnav/internal/bridge"
	"github.com/banshee-data/wallnav/internal/db"
	"github.com/banshee-data/wallnav/internal/httputil"
	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/nav"
	"github.com/banshee-data/wallnav/internal/serialmux"
	"github.com/banshee-data/wallnav/internal/units"
	"github.com/banshee-data/wallnav/internal/version"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// StatusSource reports the loop's latest snapshot.
type StatusSource interface {
	Status() nav.Status
}

// TrajectorySource reports the positions driven so far.
type TrajectorySource interface {
	Trajectory() []nav.Position
}

// Deps are the running components the server reports on. Only Loop is
// required.
type Deps struct {
	Loop       StatusSource
	Inbox      *nav.Inbox
	Link       serialmux.SerialMuxInterface
	Bridge     *bridge.Bridge
	Trajectory TrajectorySource
	DB         *db.DB
	RunID      string
}

type Server struct {
	deps Deps
}

func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// StateResponse is the body of /api/state.
type StateResponse struct {
	Version    string           `json:"version"`
	RunID      string           `json:"run_id,omitempty"`
	AngleUnits string           `json:"angle_units"`
	Nav        nav.Status       `json:"nav"`
	Inbox      *nav.InboxStats  `json:"inbox,omitempty"`
	Serial     *serialmux.Stats `json:"serial,omitempty"`
	Bridge     *bridge.Stats    `json:"bridge,omitempty"`
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes plus the link and DB debug routes.
func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/waypoints", s.listWaypoints)
	mux.HandleFunc("/api/trajectory", s.showTrajectory)
	if s.deps.Link != nil {
		s.deps.Link.AttachAdminRoutes(mux)
	}
	if s.deps.DB != nil {
		if err := s.deps.DB.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.Radians
	}
	if !units.IsValid(unit) {
		httputil.WriteJSONError(w, http.StatusBadRequest, "invalid units; must be one of: "+units.GetValidUnitsString())
		return
	}

	status := s.deps.Loop.Status()
	status.Pose.Roll = units.ConvertAngle(status.Pose.Roll, unit)
	status.Pose.Pitch = units.ConvertAngle(status.Pose.Pitch, unit)
	status.Pose.Yaw = units.ConvertAngle(status.Pose.Yaw, unit)

	resp := StateResponse{
		Version:    version.String(),
		RunID:      s.deps.RunID,
		AngleUnits: unit,
		Nav:        status,
	}
	if s.deps.Inbox != nil {
		stats := s.deps.Inbox.Stats()
		resp.Inbox = &stats
	}
	if s.deps.Link != nil {
		stats := s.deps.Link.Stats()
		resp.Serial = &stats
	}
	if s.deps.Bridge != nil {
		stats := s.deps.Bridge.Stats()
		resp.Bridge = &stats
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// listWaypoints serves the persisted waypoints of ?run_id= (default: the
// current run). Without a DB it falls back to the loop's in-memory record.
func (s *Server) listWaypoints(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	if s.deps.DB == nil {
		httputil.WriteJSON(w, http.StatusOK, s.deps.Loop.Status().Waypoints)
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runID = s.deps.RunID
	}
	if runID == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "missing 'run_id' parameter")
		return
	}
	waypoints, err := s.deps.DB.ListWaypoints(runID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "Failed to list waypoints: "+err.Error())
		return
	}
	if waypoints == nil {
		waypoints = []db.Waypoint{}
	}
	httputil.WriteJSON(w, http.StatusOK, waypoints)
}
