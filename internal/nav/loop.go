package nav

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

// FinalState is handed to the map sink when the loop ends.
type FinalState struct {
	Pose        Pose
	HasPose     bool
	WallOffset  float64
	Waypoints   map[int]Position
	Transitions []Transition
}

// MapSink persists the run's map artifacts on shutdown.
type MapSink interface {
	Flush(FinalState) error
}

// Status is a point-in-time view of the engine for debug surfaces.
type Status struct {
	NavState     string           `json:"nav_state"`
	MissionState string           `json:"mission_state"`
	Case         string           `json:"case"`
	WallOffset   float64          `json:"wall_offset"`
	Pose         Pose             `json:"pose"`
	HasPose      bool             `json:"has_pose"`
	Distances    DirectionalDists `json:"distances"`
	Command      Twist            `json:"command"`
	Waypoints    map[int]Position `json:"waypoints"`
	Cycles       uint64           `json:"cycles"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// DirectionalDists is the JSON form of the wall-follow directions.
type DirectionalDists struct {
	Front      float64 `json:"front"`
	LeftFront  float64 `json:"left_front"`
	RightFront float64 `json:"right_front"`
	LeftBack   float64 `json:"left_back"`
	Back       float64 `json:"back"`
}

// LoopConfig collects the loop's collaborators. Sink and Recorder are
// optional.
type LoopConfig struct {
	Sensors  Sensors
	Pub      Publisher
	Sink     MapSink
	Mission  *MissionCoordinator
	Log      *TransitionLog
	Clock    timeutil.Clock
	Params   Params
	Maneuver ManeuverConfig
	Stuck    StuckPolicyConfig
}

// NavigationLoop is the single control thread: it acquires a wall, then runs
// the wall follower one cycle at a time under the mission gate.
type NavigationLoop struct {
	sensors   Sensors
	pub       Publisher
	sink      MapSink
	mission   *MissionCoordinator
	log       *TransitionLog
	clock     timeutil.Clock
	agg       RangeAggregator
	decider   *WallFollowDecider
	maneuvers *ManeuverController
	stuckCfg  StuckPolicyConfig
	params    *Params

	finalizeOnce sync.Once
	finalizeErr  error

	mu     sync.RWMutex
	status Status
}

// NewNavigationLoop wires a loop from cfg.
func NewNavigationLoop(cfg LoopConfig) *NavigationLoop {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	log := cfg.Log
	if log == nil {
		log = NewTransitionLog(clock)
	}
	params := cfg.Params
	l := &NavigationLoop{
		sensors:  cfg.Sensors,
		sink:     cfg.Sink,
		mission:  cfg.Mission,
		log:      log,
		clock:    clock,
		agg:      NewRangeAggregator(params.ClearDistance),
		decider:  NewWallFollowDecider(log),
		stuckCfg: cfg.Stuck,
		params:   &params,
	}
	l.status.WallOffset = params.WallOffset
	l.pub = &trackingPublisher{next: cfg.Pub, loop: l}
	l.maneuvers = NewManeuverController(l.sensors, l.pub, l.params, cfg.Maneuver, clock, log)
	return l
}

// Maneuvers exposes the loop's maneuver controller.
func (l *NavigationLoop) Maneuvers() *ManeuverController { return l.maneuvers }

// Run drives the robot until ctx ends. The robot is stopped and the map sink
// flushed exactly once on every exit path.
func (l *NavigationLoop) Run(ctx context.Context) (err error) {
	defer func() {
		err = errors.Join(err, l.finalize())
	}()

	monitoring.Logf("Waiting for range data")
	for len(l.sensors.Scan()) == 0 {
		if err := l.sensors.SpinOnce(ctx); err != nil {
			return err
		}
	}

	if err := l.acquire(ctx); err != nil {
		return err
	}
	l.mission.StartStuckPolicy()

	for {
		if err := l.sensors.SpinOnce(ctx); err != nil {
			return err
		}
		if err := l.Cycle(ctx); err != nil {
			return err
		}
	}
}

// Cycle runs one control cycle against the latest cells. Only context errors
// are returned; other failures stop the robot for this cycle.
func (l *NavigationLoop) Cycle(ctx context.Context) error {
	scan := l.sensors.Scan()
	if len(scan) == 0 {
		return nil
	}

	if pose, ok := l.sensors.Pose(); ok {
		if l.mission.CheckProgress(pose.Position, l.params) == StuckArmed {
			l.publish(Halt)
			if err := timeutil.SleepContext(ctx, l.clock, l.stuckCfg.ArmPause); err != nil {
				return err
			}
		}
	}

	switch l.mission.Gate() {
	case GateHoldZone:
		return l.holdFor(ctx, GateHoldZone)
	case GateHoldTarget:
		if err := l.holdFor(ctx, GateHoldTarget); err != nil {
			return err
		}
		if l.mission.Gate() == GateReacquire {
			return l.reacquire(ctx)
		}
		return nil
	case GateReacquire:
		return l.reacquire(ctx)
	}

	d, err := l.agg.Aggregate(scan, WallFollowWindows)
	if err != nil {
		l.publish(Halt)
		return nil
	}
	dec, err := l.decider.Step(d, *l.params)
	wallOffset := l.params.WallOffset
	l.record(func(s *Status) {
		s.Case = dec.Case.String()
		s.WallOffset = wallOffset
		if err == nil {
			s.NavState = dec.State.String()
		}
		s.Distances = DirectionalDists{
			Front: d.Front, LeftFront: d.LeftFront, RightFront: d.RightFront,
			LeftBack: d.LeftBack, Back: d.Back,
		}
		s.Cycles++
	})
	if err != nil {
		l.publish(Halt)
		return nil
	}
	l.publish(dec.Command)
	return nil
}

// holdFor keeps the robot stopped while the mission gate stays at g.
func (l *NavigationLoop) holdFor(ctx context.Context, g Gate) error {
	for l.mission.Gate() == g {
		l.publish(Halt)
		if err := l.sensors.SpinOnce(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (l *NavigationLoop) reacquire(ctx context.Context) error {
	err := l.acquire(ctx)
	l.mission.Resume()
	return err
}

// acquire runs AcquireNearestWall. A timed-out maneuver leaves the robot
// stopped and wall following continues from wherever it ended.
func (l *NavigationLoop) acquire(ctx context.Context) error {
	l.record(func(s *Status) { s.NavState = InitialPositioning.String() })
	err := l.maneuvers.AcquireNearestWall(ctx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		monitoring.Diagf("wall acquisition failed: %v", err)
		l.publish(Halt)
		return nil
	}
}

func (l *NavigationLoop) publish(t Twist) {
	if err := l.pub.PublishVelocity(t); err != nil {
		monitoring.Logf("failed to publish velocity: %v", err)
	}
}

// Close finalizes the loop if Run has not already done so.
func (l *NavigationLoop) Close() error { return l.finalize() }

func (l *NavigationLoop) finalize() error {
	l.finalizeOnce.Do(func() {
		var errs []error
		if err := l.pub.PublishVelocity(Halt); err != nil {
			errs = append(errs, err)
		}
		if l.sink != nil {
			pose, ok := l.sensors.Pose()
			final := FinalState{
				Pose:        pose,
				HasPose:     ok,
				WallOffset:  l.params.WallOffset,
				Waypoints:   l.mission.Waypoints(),
				Transitions: l.log.History(),
			}
			if err := l.sink.Flush(final); err != nil {
				errs = append(errs, err)
			}
		}
		l.finalizeErr = errors.Join(errs...)
		if l.finalizeErr != nil {
			monitoring.Logf("finalize: %v", l.finalizeErr)
		}
	})
	return l.finalizeErr
}

func (l *NavigationLoop) record(update func(*Status)) {
	l.mu.Lock()
	update(&l.status)
	l.status.UpdatedAt = l.clock.Now()
	l.mu.Unlock()
}

// Status returns the latest engine status.
func (l *NavigationLoop) Status() Status {
	l.mu.RLock()
	s := l.status
	l.mu.RUnlock()

	s.MissionState = l.mission.State().String()
	s.Pose, s.HasPose = l.sensors.Pose()
	s.Waypoints = l.mission.Waypoints()
	return s
}

// trackingPublisher remembers the last command for Status.
type trackingPublisher struct {
	next Publisher
	loop *NavigationLoop
}

func (p *trackingPublisher) PublishVelocity(t Twist) error {
	p.loop.record(func(s *Status) { s.Command = t })
	return p.next.PublishVelocity(t)
}
