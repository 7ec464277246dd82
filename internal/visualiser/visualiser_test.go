package visualiser

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/wallnav/internal/nav"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

type fakeSource struct {
	mu sync.Mutex
	st nav.Status
}

func (f *fakeSource) Status() nav.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeSource) set(st nav.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st = st
}

// startServer serves srv over an in-memory listener and returns a client.
func startServer(t *testing.T, srv *Server) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGetStatus(t *testing.T) {
	src := &fakeSource{st: nav.Status{
		NavState:     "FollowWall",
		MissionState: "Idle",
		Case:         "case 2",
		WallOffset:   0.5,
		Cycles:       12,
		Distances:    nav.DirectionalDists{Front: 1.5, LeftFront: 0.4},
	}}
	client := startServer(t, NewServer(src, timeutil.NewMockClock(time.Unix(0, 0)), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := client.Status(ctx)
	require.NoError(t, err)

	fields := msg.GetFields()
	assert.Equal(t, "FollowWall", fields["nav_state"].GetStringValue())
	assert.Equal(t, "Idle", fields["mission_state"].GetStringValue())
	assert.Equal(t, "case 2", fields["case"].GetStringValue())
	assert.InDelta(t, 0.5, fields["wall_offset"].GetNumberValue(), 1e-9)
	assert.InDelta(t, 12, fields["cycles"].GetNumberValue(), 1e-9)
	dists := fields["distances"].GetStructValue().GetFields()
	assert.InDelta(t, 1.5, dists["front"].GetNumberValue(), 1e-9)
	assert.InDelta(t, 0.4, dists["left_front"].GetNumberValue(), 1e-9)
}

func TestGetStatus_NoSource(t *testing.T) {
	client := startServer(t, NewServer(nil, nil, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Status(ctx)
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestWatchStatus_TicksFollowClock(t *testing.T) {
	src := &fakeSource{st: nav.Status{NavState: "FindWall"}}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	srv := NewServer(src, clock, 50*time.Millisecond)
	client := startServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *structpb.Struct)
	errc := make(chan error, 1)
	go func() {
		errc <- client.Watch(ctx, func(msg *structpb.Struct) error {
			select {
			case got <- msg:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	first := <-got
	assert.Equal(t, "FindWall", first.GetFields()["nav_state"].GetStringValue())
	assert.Equal(t, int32(1), srv.Stats().Clients)

	src.set(nav.Status{NavState: "FollowWall"})
	clock.Advance(50 * time.Millisecond)

	second := <-got
	assert.Equal(t, "FollowWall", second.GetFields()["nav_state"].GetStringValue())

	cancel()
	err := <-errc
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled, "got %v", err)
	assert.GreaterOrEqual(t, srv.Stats().Messages, uint64(2))
}

func TestServe_StopsWithOpenStream(t *testing.T) {
	src := &fakeSource{st: nav.Status{NavState: "FindWall"}}
	srv := NewServer(src, timeutil.NewMockClock(time.Unix(0, 0)), time.Hour)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	defer client.Close()

	received := make(chan struct{}, 1)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- client.Watch(context.Background(), func(*structpb.Struct) error {
			select {
			case received <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("no status received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	select {
	case err := <-watchErr:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not end after server stop")
	}
}

func TestStatusStruct_Waypoints(t *testing.T) {
	msg, err := StatusStruct(nav.Status{
		Waypoints: map[int]nav.Position{3: {X: 1.25, Y: -2}},
	})
	require.NoError(t, err)
	wps := msg.GetFields()["waypoints"].GetStructValue().GetFields()
	require.Contains(t, wps, "3")
	pos := wps["3"].GetStructValue().GetFields()
	assert.InDelta(t, 1.25, pos["x"].GetNumberValue(), 1e-9)
	assert.InDelta(t, -2, pos["y"].GetNumberValue(), 1e-9)
}
