package nav

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

func TestTransitionLog_ChangeOnly(t *testing.T) {
	lines, restore := monitoring.Capture()
	defer restore()

	log := NewTransitionLog(timeutil.NewMockClock(testEpoch))
	log.Nav(FindWall)
	log.Nav(FindWall)
	log.Nav(FollowWall)
	log.Mission(TargetDetected)
	log.Mission(TargetDetected)
	log.Nav(FollowWall)

	want := []string{
		"Wall follower - [FindWall] - Find the wall",
		"Wall follower - [FollowWall] - Follow the wall",
		"Targeting - [TargetDetected] - Hot target detected, initiating firing sequence",
		"Wall follower - [FollowWall] - Follow the wall",
	}
	if diff := cmp.Diff(want, *lines); diff != "" {
		t.Errorf("log lines mismatch (-want +got):\n%s", diff)
	}
}

func TestTransitionLog_SuppressesZoneTargetFlip(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	log := NewTransitionLog(timeutil.NewMockClock(testEpoch))
	log.Mission(ZoneFound)
	log.Mission(ZoneCleared)
	log.Mission(TargetDetected)
	log.Mission(ZoneCleared)
	log.Mission(TargetCleared)

	got := log.History()
	want := []Transition{
		{Track: TrackMission, Label: "ZoneFound"},
		{Track: TrackMission, Label: "ZoneCleared"},
		{Track: TrackMission, Label: "TargetCleared"},
	}
	opts := cmpopts.IgnoreFields(Transition{}, "Description", "At")
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("History mismatch (-want +got):\n%s", diff)
	}

	last, _ := log.Last()
	if last.Label != "TargetCleared" {
		t.Errorf("Last = %s", last.Label)
	}
}

func TestTransitionLog_Hook(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	clock := timeutil.NewMockClock(testEpoch)
	log := NewTransitionLog(clock)
	var got []Transition
	log.OnTransition = func(tr Transition) { got = append(got, tr) }

	log.Nav(UTurn)
	clock.Advance(1)
	log.Mission(Idle)

	if len(got) != 2 {
		t.Fatalf("hook called %d times, want 2", len(got))
	}
	if got[0].Track != TrackWallFollower || got[1].Track != TrackMission {
		t.Errorf("tracks = %s, %s", got[0].Track, got[1].Track)
	}
	if !got[0].At.Equal(testEpoch) {
		t.Errorf("At = %v, want %v", got[0].At, testEpoch)
	}
}
