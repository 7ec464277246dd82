package nav

import (
	"context"
	"math"
	"time"

	"github.com/banshee-data/wallnav/internal/timeutil"
	"github.com/banshee-data/wallnav/internal/units"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// simRobot is a kinematic robot that implements Sensors and Publisher. Each
// SpinOnce integrates the last command over dt and advances the clock.
type simRobot struct {
	clock   *timeutil.MockClock
	dt      time.Duration
	pose    Pose
	noPose  bool
	cmd     Twist
	sent    []Twist
	steps   int
	scanFn  func(s *simRobot) RangeScan
	onSpin  func(s *simRobot)
	stalled bool // ignores commands
}

func newSimRobot(yaw float64) *simRobot {
	return &simRobot{
		clock: timeutil.NewMockClock(testEpoch),
		dt:    20 * time.Millisecond,
		pose:  Pose{Yaw: yaw},
	}
}

func (s *simRobot) PublishVelocity(t Twist) error {
	s.cmd = t
	s.sent = append(s.sent, t)
	return nil
}

func (s *simRobot) SpinOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.steps++
	if !s.stalled {
		dt := s.dt.Seconds()
		s.pose.Yaw = units.NormalizeAngle(s.pose.Yaw + s.cmd.Angular.Z*dt)
		s.pose.Position.X += s.cmd.Linear.X * math.Cos(s.pose.Yaw) * dt
		s.pose.Position.Y += s.cmd.Linear.X * math.Sin(s.pose.Yaw) * dt
	}
	s.clock.Advance(s.dt)
	if s.onSpin != nil {
		s.onSpin(s)
	}
	return nil
}

func (s *simRobot) Scan() RangeScan {
	if s.scanFn == nil {
		return nil
	}
	return s.scanFn(s)
}

func (s *simRobot) Pose() (Pose, bool) { return s.pose, !s.noPose }

func (s *simRobot) last() Twist {
	if len(s.sent) == 0 {
		return Twist{}
	}
	return s.sent[len(s.sent)-1]
}

// headingDelta is the signed angle from a to b in (-π, π].
func headingDelta(a, b float64) float64 {
	return units.NormalizeAngle(b - a)
}

func testManeuverConfig() ManeuverConfig {
	return ManeuverConfig{
		TurnTimeout:     15 * time.Second,
		ApproachTimeout: 30 * time.Second,
		PollInterval:    time.Millisecond,
	}
}
