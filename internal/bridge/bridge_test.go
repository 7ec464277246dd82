package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wallnav/internal/mapsink"
	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/nav"
	"github.com/banshee-data/wallnav/internal/serialmux"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

// lineFeed is a link whose inbound lines are pushed by the test.
type lineFeed struct {
	*serialmux.DisabledSerialMux
	lines chan string
}

func newLineFeed() *lineFeed {
	return &lineFeed{DisabledSerialMux: serialmux.NewDisabledSerialMux(), lines: make(chan string, 16)}
}

func (f *lineFeed) Subscribe() (string, chan string) { return "feed", f.lines }
func (f *lineFeed) Unsubscribe(string)               {}

type gridRecorder struct {
	mu    sync.Mutex
	grids []mapsink.Grid
}

func (g *gridRecorder) UpdateGrid(grid mapsink.Grid) {
	g.mu.Lock()
	g.grids = append(g.grids, grid)
	g.mu.Unlock()
}

func (g *gridRecorder) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.grids)
}

func nextUpdate(t *testing.T, inbox *nav.Inbox) nav.Update {
	t.Helper()
	u, ok, err := inbox.Next(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok, "expected an update")
	return u
}

func TestBridge_HandleLineRoutesUpdates(t *testing.T) {
	inbox := nav.NewInbox()
	b := New(newLineFeed(), inbox, nil, nil, Frames{})

	require.NoError(t, b.HandleLine([]byte(`{"type":"scan","ranges":[1,2,3]}`)))
	u := nextUpdate(t, inbox)
	assert.Equal(t, nav.UpdateScan, u.Kind)
	assert.Equal(t, nav.RangeScan{1, 2, 3}, u.Scan)

	require.NoError(t, b.HandleLine([]byte(`{"type":"odom","position":{"x":1,"y":2,"z":0},"orientation":{"x":0,"y":0,"z":0.7071067811865476,"w":0.7071067811865476}}`)))
	u = nextUpdate(t, inbox)
	assert.Equal(t, nav.UpdatePose, u.Kind)
	assert.Equal(t, nav.Position{X: 1, Y: 2}, u.Pose.Position)
	assert.InDelta(t, 1.5707963, u.Pose.Yaw, 1e-6)

	require.NoError(t, b.HandleLine([]byte(`{"type":"targeting_status","data":"Detected","key":3}`)))
	u = nextUpdate(t, inbox)
	assert.Equal(t, nav.TargetingDetected, u.Targeting)
	require.NotNil(t, u.WaypointKey)
	assert.Equal(t, 3, *u.WaypointKey)

	require.NoError(t, b.HandleLine([]byte(`{"type":"nfc","data":"FINISH LOADING"}`)))
	u = nextUpdate(t, inbox)
	assert.Equal(t, nav.UpdateZone, u.Kind)
	assert.Equal(t, nav.ZoneFinishedLoading, u.Zone)

	require.NoError(t, b.HandleLine([]byte(`{"type":"nfc","data":"unknown tag"}`)))
	_, ok, err := inbox.Next(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	stats := b.Stats()
	assert.Equal(t, uint64(5), stats.Decoded)
	assert.Equal(t, uint64(1), stats.Ignored)
}

func TestBridge_MapNeedsBaseInMap(t *testing.T) {
	grids := &gridRecorder{}
	b := New(newLineFeed(), nav.NewInbox(), NewTransformBuffer(timeutil.NewMockClock(testEpoch), 0), grids, Frames{})

	mapLine := []byte(`{"type":"map","width":2,"height":2,"resolution":0.05,"data":[-1,0,100,0]}`)
	require.NoError(t, b.HandleLine(mapLine))
	assert.Equal(t, 0, grids.count())
	assert.Equal(t, uint64(1), b.Stats().GridsDropped)

	require.NoError(t, b.HandleLine([]byte(`{"type":"tf","parent":"map","child":"odom","translation":{"x":0,"y":0,"z":0},"rotation":{"x":0,"y":0,"z":0,"w":1}}`)))
	require.NoError(t, b.HandleLine([]byte(`{"type":"tf","parent":"odom","child":"base_footprint","translation":{"x":1,"y":0,"z":0},"rotation":{"x":0,"y":0,"z":0,"w":1}}`)))
	require.NoError(t, b.HandleLine(mapLine))
	require.Equal(t, 1, grids.count())
	assert.Equal(t, []int8{-1, 0, 100, 0}, grids.grids[0].Cells)
	assert.Equal(t, 2, grids.grids[0].Width)
}

func TestBridge_RunLogsBadLines(t *testing.T) {
	lines, restore := monitoring.Capture()
	defer restore()

	feed := newLineFeed()
	inbox := nav.NewInbox()
	b := New(feed, inbox, nil, nil, Frames{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	feed.lines <- `garbage`
	feed.lines <- `{"type":"scan","ranges":[0.4]}`

	u := nextUpdate(t, inbox)
	assert.Equal(t, nav.RangeScan{0.4}, u.Scan)

	close(feed.lines)
	require.NoError(t, <-done)
	assert.Equal(t, uint64(1), b.Stats().DecodeErrors)
	require.NotEmpty(t, *lines)
	assert.Contains(t, (*lines)[0], "dropping line")
}

func TestBridge_PublishVelocity(t *testing.T) {
	port := serialmux.NewFakePort()
	mux := serialmux.NewSerialMux(port)
	b := New(mux, nav.NewInbox(), nil, nil, Frames{})

	require.NoError(t, b.PublishVelocity(nav.Drive(0.2, 0)))
	require.NoError(t, b.PublishVelocity(nav.Halt))

	written := port.WrittenLines()
	require.Len(t, written, 2)
	assert.JSONEq(t, `{"type":"cmd_vel","linear":{"x":0.2,"y":0,"z":0},"angular":{"x":0,"y":0,"z":0}}`, written[0])
	assert.Equal(t, uint64(2), mux.Stats().LinesOut)
}
