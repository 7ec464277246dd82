package nav

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/timeutil"
	"github.com/banshee-data/wallnav/internal/units"
)

// ErrManeuverTimeout is returned when a blocking maneuver does not converge
// within its bound. The robot has been stopped when it is returned.
var ErrManeuverTimeout = errors.New("maneuver timed out")

// Publisher sends velocity commands to the robot base.
type Publisher interface {
	PublishVelocity(Twist) error
}

// ManeuverController runs the blocking maneuvers. While one runs, it keeps
// servicing inbound updates so the pose and scan stay fresh.
type ManeuverController struct {
	sensors Sensors
	pub     Publisher
	agg     RangeAggregator
	params  *Params
	cfg     ManeuverConfig
	clock   timeutil.Clock
	log     *TransitionLog
}

// NewManeuverController wires a controller. params is shared with the loop so
// offset changes are seen by later maneuvers.
func NewManeuverController(sensors Sensors, pub Publisher, params *Params, cfg ManeuverConfig, clock timeutil.Clock, log *TransitionLog) *ManeuverController {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ManeuverController{
		sensors: sensors,
		pub:     pub,
		agg:     NewRangeAggregator(params.ClearDistance),
		params:  params,
		cfg:     cfg,
		clock:   clock,
		log:     log,
	}
}

func (m *ManeuverController) publish(t Twist) {
	if err := m.pub.PublishVelocity(t); err != nil {
		monitoring.Logf("failed to publish velocity: %v", err)
	}
}

func (m *ManeuverController) stop() { m.publish(Halt) }

// waitForPose spins until a pose is available.
func (m *ManeuverController) waitForPose(ctx context.Context) (Pose, error) {
	start := m.clock.Now()
	for {
		if p, ok := m.sensors.Pose(); ok {
			return p, nil
		}
		if m.clock.Since(start) > m.cfg.TurnTimeout {
			return Pose{}, ErrNoPose
		}
		if err := m.sensors.SpinOnce(ctx); err != nil {
			return Pose{}, err
		}
	}
}

// TurnToRelativeHeading rotates in place by angle radians, positive
// counter-clockwise. Headings are compared as unit complex numbers so the
// ±π wrap needs no special casing: the turn ends when the sign of the
// remaining angle flips.
func (m *ManeuverController) TurnToRelativeHeading(ctx context.Context, angle float64) error {
	if units.NormalizeAngle(angle) == 0 {
		return nil
	}
	pose, err := m.waitForPose(ctx)
	if err != nil {
		m.stop()
		return err
	}
	target := cmplx.Rect(1, pose.Yaw+angle)
	remaining := func(yaw float64) float64 {
		return imag(target / cmplx.Rect(1, yaw))
	}
	dir := sign(remaining(pose.Yaw))
	if dir == 0 {
		return nil
	}

	m.publish(Drive(0, dir*m.params.TurnSpeedFast))
	start := m.clock.Now()
	for {
		if err := m.sensors.SpinOnce(ctx); err != nil {
			m.stop()
			return err
		}
		p, _ := m.sensors.Pose()
		if dir*sign(remaining(p.Yaw)) <= 0 {
			break
		}
		if m.clock.Since(start) > m.cfg.TurnTimeout {
			m.stop()
			monitoring.Diagf("turn of %.1f deg timed out at yaw %.1f deg", units.RadToDeg(angle), units.RadToDeg(p.Yaw))
			return fmt.Errorf("turn by %.1f deg: %w", units.RadToDeg(angle), ErrManeuverTimeout)
		}
	}
	m.stop()
	return nil
}

// AcquireNearestWall turns toward the nearest quadrant, drives until the
// front is within the wall offset, stops, then turns 45 degrees clockwise so
// the wall sits on the left.
func (m *ManeuverController) AcquireNearestWall(ctx context.Context) error {
	if m.log != nil {
		m.log.Nav(InitialPositioning)
	}

	q, err := m.quadrants(ctx)
	if err != nil {
		return err
	}
	regions := []float64{q.Front, q.Left, q.Rear, q.Right}
	nearest := floats.MinIdx(regions)
	monitoring.Diagf("nearest wall quadrant %d at %.2f m", nearest, regions[nearest])
	if err := m.TurnToRelativeHeading(ctx, float64(nearest)*math.Pi/2); err != nil {
		return err
	}

	start := m.clock.Now()
	for {
		q, err := m.agg.Aggregate(m.sensors.Scan(), QuadrantWindows)
		if err != nil {
			m.stop()
			return err
		}
		if q.Front <= m.params.WallOffset {
			break
		}
		if m.clock.Since(start) > m.cfg.ApproachTimeout {
			m.stop()
			monitoring.Diagf("approach timed out with front at %.2f m", q.Front)
			return fmt.Errorf("approach wall: %w", ErrManeuverTimeout)
		}
		m.publish(Drive(m.params.LinearSpeed, 0))
		if err := m.sensors.SpinOnce(ctx); err != nil {
			m.stop()
			return err
		}
	}
	m.stop()
	return m.TurnToRelativeHeading(ctx, units.DegToRad(-45))
}

// quadrants spins until a scan is available and reduces it.
func (m *ManeuverController) quadrants(ctx context.Context) (DirectionalDistances, error) {
	start := m.clock.Now()
	for len(m.sensors.Scan()) == 0 {
		if m.clock.Since(start) > m.cfg.ApproachTimeout {
			return DirectionalDistances{}, ErrNoScan
		}
		if err := m.sensors.SpinOnce(ctx); err != nil {
			return DirectionalDistances{}, err
		}
	}
	return m.agg.Aggregate(m.sensors.Scan(), QuadrantWindows)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
