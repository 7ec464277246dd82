package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wallnav/internal/bridge"
	"github.com/banshee-data/wallnav/internal/db"
	"github.com/banshee-data/wallnav/internal/fsutil"
	"github.com/banshee-data/wallnav/internal/mapsink"
	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/nav"
	"github.com/banshee-data/wallnav/internal/serialmux"
	"github.com/banshee-data/wallnav/internal/testutil"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

type fixedStatus nav.Status

func (f fixedStatus) Status() nav.Status { return nav.Status(f) }

func testStatus() fixedStatus {
	return fixedStatus{
		NavState:     "FollowWall",
		MissionState: "Idle",
		WallOffset:   0.45,
		HasPose:      true,
		Pose:         nav.Pose{Position: nav.Position{X: 1, Y: 2}, Yaw: math.Pi / 2},
		Waypoints:    map[int]nav.Position{1: {X: 0.5, Y: 0.5}},
		Cycles:       42,
	}
}

func localHostRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func serve(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	mux, err := s.ServeMux()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestShowState(t *testing.T) {
	inbox := nav.NewInbox()
	inbox.Put(nav.Update{Kind: nav.UpdateScan})
	link := serialmux.NewDisabledSerialMux()
	require.NoError(t, link.SendCommand("hello"))
	br := bridge.New(link, inbox, nil, nil, bridge.Frames{})

	s := NewServer(Deps{Loop: testStatus(), Inbox: inbox, Link: link, Bridge: br, RunID: "run-1"})
	rec := serve(t, s, localHostRequest(http.MethodGet, "/api/state"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "FollowWall", got.Nav.NavState)
	assert.Equal(t, uint64(42), got.Nav.Cycles)
	require.NotNil(t, got.Inbox)
	assert.Equal(t, 1, got.Inbox.Pending)
	require.NotNil(t, got.Serial)
	assert.Equal(t, uint64(1), got.Serial.LinesOut)
	require.NotNil(t, got.Bridge)
	assert.Contains(t, got.Version, "wallnav")
}

func TestShowState_AngleUnits(t *testing.T) {
	s := NewServer(Deps{Loop: testStatus()})
	mux, err := s.ServeMux()
	testutil.AssertNoError(t, err)

	tests := []struct {
		query   string
		code    int
		units   string
		wantYaw float64
	}{
		{"", http.StatusOK, "rad", math.Pi / 2},
		{"?units=rad", http.StatusOK, "rad", math.Pi / 2},
		{"?units=deg", http.StatusOK, "deg", 90},
		{"?units=grad", http.StatusBadRequest, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/state"+tt.query))
			testutil.AssertStatusCode(t, rec.Code, tt.code)
			if tt.code != http.StatusOK {
				assert.Contains(t, rec.Body.String(), "rad, deg")
				return
			}
			var got StateResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.units, got.AngleUnits)
			assert.InDelta(t, tt.wantYaw, got.Nav.Pose.Yaw, 1e-9)
		})
	}

	// the source status is not modified by the conversion
	assert.InDelta(t, math.Pi/2, s.deps.Loop.Status().Pose.Yaw, 1e-9)
}

func TestShowState_MinimalDeps(t *testing.T) {
	s := NewServer(Deps{Loop: testStatus()})
	rec := serve(t, s, localHostRequest(http.MethodGet, "/api/state"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"serial"`)

	rec = serve(t, s, localHostRequest(http.MethodPost, "/api/state"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListWaypoints_InMemory(t *testing.T) {
	s := NewServer(Deps{Loop: testStatus()})
	rec := serve(t, s, localHostRequest(http.MethodGet, "/api/waypoints"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]nav.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, nav.Position{X: 0.5, Y: 0.5}, got["1"])
}

func TestListWaypoints_FromDB(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "wallnav.db"))
	require.NoError(t, err)
	defer database.Close()

	epoch := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run, err := database.StartRun(epoch, "")
	require.NoError(t, err)
	store := db.NewWaypointStore(database, run.ID, timeutil.NewMockClock(epoch))
	require.NoError(t, store.RecordWaypoint(3, nav.Position{X: 1.5}))

	s := NewServer(Deps{Loop: testStatus(), DB: database, RunID: run.ID})

	rec := serve(t, s, localHostRequest(http.MethodGet, "/api/waypoints"))
	require.Equal(t, http.StatusOK, rec.Code)
	var got []db.Waypoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Key)

	rec = serve(t, s, localHostRequest(http.MethodGet, "/api/waypoints?run_id=other"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	noRun := NewServer(Deps{Loop: testStatus(), DB: database})
	rec = serve(t, noRun, localHostRequest(http.MethodGet, "/api/waypoints"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShowTrajectory(t *testing.T) {
	sink := mapsink.NewPlotSink(fsutil.NewMemoryFileSystem(), "out")
	sink.ObservePose(nav.Pose{Position: nav.Position{X: 0, Y: 0}})
	sink.ObservePose(nav.Pose{Position: nav.Position{X: 1, Y: 0.5}})

	s := NewServer(Deps{Loop: testStatus(), Trajectory: sink})
	rec := serve(t, s, localHostRequest(http.MethodGet, "/api/trajectory"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "trajectory")
	assert.Contains(t, body, "waypoint 1")

	s = NewServer(Deps{Loop: testStatus()})
	rec = serve(t, s, localHostRequest(http.MethodGet, "/api/trajectory"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDebugRoutesMounted(t *testing.T) {
	s := NewServer(Deps{Loop: testStatus(), Link: serialmux.NewDisabledSerialMux()})
	rec := serve(t, s, localHostRequest(http.MethodGet, "/debug/"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "send-command")
}

func TestLoggingMiddleware(t *testing.T) {
	lines, restore := monitoring.Capture()
	defer restore()

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state?x=1", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.Len(t, *lines, 1)
	assert.True(t, strings.Contains((*lines)[0], "418"))
	assert.Contains(t, (*lines)[0], "/api/state?x=1")
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"302"+colorReset, statusCodeColor(302))
	assert.Equal(t, colorBoldRed+"500"+colorReset, statusCodeColor(500))
	assert.Equal(t, "100", statusCodeColor(100))
}
