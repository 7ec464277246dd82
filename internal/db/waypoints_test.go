package db

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/nav"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

func newTestStore(t *testing.T) (*DB, *WaypointStore, *timeutil.MockClock) {
	t.Helper()
	db := newTestDB(t)
	run, err := db.StartRun(testEpoch, "")
	require.NoError(t, err)
	clock := timeutil.NewMockClock(testEpoch)
	return db, NewWaypointStore(db, run.ID, clock), clock
}

func TestWaypointStore_RecordAndList(t *testing.T) {
	db, store, clock := newTestStore(t)

	require.NoError(t, store.RecordWaypoint(2, nav.Position{X: 1.2, Y: -0.4}))
	clock.Advance(time.Second)
	require.NoError(t, store.RecordWaypoint(1, nav.Position{X: 0.5, Y: 0.5}))
	clock.Advance(time.Second)
	// same key again replaces the position
	require.NoError(t, store.RecordWaypoint(2, nav.Position{X: 1.3, Y: -0.4}))

	got, err := db.ListWaypoints(store.RunID())
	require.NoError(t, err)
	want := []Waypoint{
		{RunID: store.RunID(), Key: 1, Position: nav.Position{X: 0.5, Y: 0.5}, RecordedAt: testEpoch.Add(time.Second)},
		{RunID: store.RunID(), Key: 2, Position: nav.Position{X: 1.3, Y: -0.4}, RecordedAt: testEpoch.Add(2 * time.Second)},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("ListWaypoints mismatch (-want +got):\n%s", diff)
	}
}

func TestGetWaypoint(t *testing.T) {
	db, store, _ := newTestStore(t)
	require.NoError(t, store.RecordWaypoint(7, nav.Position{X: 3}))

	wp, err := db.GetWaypoint(store.RunID(), 7)
	require.NoError(t, err)
	assert.Equal(t, 3.0, wp.Position.X)

	_, err = db.GetWaypoint(store.RunID(), 8)
	assert.ErrorIs(t, err, ErrWaypointNotFound)
}

func TestWaypointStore_UnknownRun(t *testing.T) {
	db := newTestDB(t)
	store := NewWaypointStore(db, "no-such-run", timeutil.NewMockClock(testEpoch))
	err := store.RecordWaypoint(1, nav.Position{})
	assert.Error(t, err, "foreign key should reject an unknown run")
}

func TestWaypointStore_RecordTransition(t *testing.T) {
	db, store, clock := newTestStore(t)

	tl := nav.NewTransitionLog(clock)
	tl.OnTransition = store.RecordTransition

	lines, restore := monitoring.Capture()
	defer restore()

	tl.Nav(nav.FindWall)
	clock.Advance(time.Second)
	tl.Nav(nav.FollowWall)
	clock.Advance(time.Second)
	tl.Mission(nav.TargetDetected)

	got, err := db.ListTransitions(store.RunID())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, string(nav.TrackWallFollower), got[0].Track)
	assert.Equal(t, nav.FindWall.String(), got[0].Label)
	assert.Equal(t, nav.TargetDetected.String(), got[2].Label)
	assert.WithinDuration(t, testEpoch.Add(2*time.Second), got[2].RecordedAt, time.Millisecond)
	assert.Len(t, *lines, 3)
}

func TestWaypointStore_RecordTransitionLogsFailures(t *testing.T) {
	db := newTestDB(t)
	store := NewWaypointStore(db, "no-such-run", timeutil.NewMockClock(testEpoch))

	lines, restore := monitoring.Capture()
	defer restore()
	store.RecordTransition(nav.Transition{Track: nav.TrackMission, Label: "Idle", At: testEpoch})
	require.Len(t, *lines, 1)
	assert.Contains(t, (*lines)[0], "failed to persist transition Idle")
}
