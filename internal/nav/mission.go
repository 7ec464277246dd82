package nav

import (
	"fmt"
	"maps"
	"sync"

	"github.com/banshee-data/wallnav/internal/monitoring"
)

// WaypointRecorder persists waypoints outside the engine.
type WaypointRecorder interface {
	RecordWaypoint(key int, pos Position) error
}

// Gate is the mission coordinator's verdict for one cycle.
type Gate int

const (
	// GateProceed lets the wall follower run.
	GateProceed Gate = iota
	// GateHoldZone keeps the robot stopped at the loading zone.
	GateHoldZone
	// GateHoldTarget keeps the robot stopped during an engagement.
	GateHoldTarget
	// GateReacquire asks for AcquireNearestWall before wall following resumes.
	GateReacquire
)

func (g Gate) String() string {
	switch g {
	case GateProceed:
		return "proceed"
	case GateHoldZone:
		return "hold-zone"
	case GateHoldTarget:
		return "hold-target"
	case GateReacquire:
		return "reacquire"
	default:
		return fmt.Sprintf("Gate(%d)", int(g))
	}
}

type targetPhase int

const (
	targetNone targetPhase = iota
	targetDetected
	targetEngaged
	targetCleared
)

type zonePhase int

const (
	zoneNone zonePhase = iota
	zoneLoading
	zoneLoaded
	zoneDone
)

// MissionCoordinator consumes targeting and zone events and gates the wall
// follower. Events may arrive in any order relative to sensor data; each is
// applied once, when the control thread services it.
type MissionCoordinator struct {
	log      *TransitionLog
	recorder WaypointRecorder
	stuck    *StuckLoopPolicy

	mu        sync.Mutex
	state     MissionState
	target    targetPhase
	zone      zonePhase
	zoneFound bool
	// repeatLogged is set once a revisit of a finished zone has been logged.
	repeatLogged bool
	waypoints    map[int]Position
	nextKey      int
}

// NewMissionCoordinator returns a coordinator in the Idle state. recorder and
// stuck may be nil.
func NewMissionCoordinator(log *TransitionLog, recorder WaypointRecorder, stuck *StuckLoopPolicy) *MissionCoordinator {
	return &MissionCoordinator{
		log:       log,
		recorder:  recorder,
		stuck:     stuck,
		waypoints: make(map[int]Position),
		nextKey:   1,
	}
}

func (m *MissionCoordinator) setState(s MissionState) {
	m.state = s
	if m.log != nil {
		m.log.Mission(s)
	}
}

// HandleTargeting applies one targeting event. pos is the robot position when
// the event was serviced; a detection stores it, rounded, as a waypoint.
func (m *MissionCoordinator) HandleTargeting(status TargetingStatus, key *int, pos Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch status {
	case TargetingDetected:
		k := m.nextKey
		if key != nil {
			k = *key
		}
		if k >= m.nextKey {
			m.nextKey = k + 1
		}
		wp := pos.Rounded()
		m.waypoints[k] = wp
		if m.recorder != nil {
			if err := m.recorder.RecordWaypoint(k, wp); err != nil {
				monitoring.Logf("failed to record waypoint %d: %v", k, err)
			}
		}
		if m.target != targetEngaged {
			m.target = targetDetected
		}
		m.setState(TargetDetected)
	case TargetingFinished:
		if m.target == targetDetected || m.target == targetEngaged {
			m.target = targetCleared
		}
		m.setState(TargetCleared)
	default:
		if m.target == targetDetected {
			m.target = targetNone
			m.setState(Idle)
		}
	}
}

// HandleZone applies one zone event. A zone is acted on once per mission.
func (m *MissionCoordinator) HandleZone(status ZoneStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch status {
	case ZoneLocated:
		if m.zone != zoneNone {
			if m.zone == zoneDone && !m.repeatLogged {
				monitoring.Logf("Loading zone already visited, ignoring")
				m.repeatLogged = true
			}
			return
		}
		m.zone = zoneLoading
		m.zoneFound = true
		m.setState(ZoneFound)
	case ZoneFinishedLoading:
		if m.zone != zoneLoading {
			return
		}
		m.zone = zoneLoaded
		m.setState(ZoneCleared)
	}
}

// Gate evaluates the mission flags for the current cycle. The zone hold takes
// priority over an engagement. A pending detection becomes engaged the first
// time it is gated.
func (m *MissionCoordinator) Gate() Gate {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.zone {
	case zoneLoading:
		return GateHoldZone
	case zoneLoaded:
		m.zone = zoneDone
		if m.state == ZoneCleared {
			// a detection that arrived during the hold keeps its label
			switch m.target {
			case targetNone:
				m.setState(Idle)
			case targetCleared:
				m.setState(TargetCleared)
			default:
				m.setState(TargetDetected)
			}
		}
	}

	switch m.target {
	case targetDetected:
		m.target = targetEngaged
		return GateHoldTarget
	case targetEngaged:
		return GateHoldTarget
	case targetCleared:
		return GateReacquire
	}
	if m.state == TargetCleared {
		m.setState(Idle)
	}
	return GateProceed
}

// Resume ends an engagement after the robot has re-acquired a wall.
func (m *MissionCoordinator) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target = targetNone
	m.setState(Idle)
}

// CheckProgress runs the stuck-loop policy at pos and applies an escalation
// to params.
func (m *MissionCoordinator) CheckProgress(pos Position, params *Params) StuckAction {
	if m.stuck == nil {
		return StuckNone
	}
	m.mu.Lock()
	zoneFound := m.zoneFound
	m.mu.Unlock()

	action := m.stuck.Observe(pos, zoneFound)
	switch action {
	case StuckArmed:
		monitoring.Logf("Starting point: %s", pos.Rounded())
	case StuckEscalate:
		params.WallOffset += m.stuck.cfg.Increment
		monitoring.Logf("Returned to starting point without finding the zone, wall offset increased to %.2f", params.WallOffset)
	}
	return action
}

// StartStuckPolicy starts the stuck-loop clock, if a policy is set.
func (m *MissionCoordinator) StartStuckPolicy() {
	if m.stuck != nil {
		m.stuck.Start()
	}
}

// State returns the latest mission label.
func (m *MissionCoordinator) State() MissionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ZoneFound reports whether the loading zone has ever been located.
func (m *MissionCoordinator) ZoneFound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoneFound
}

// Waypoints returns a copy of the recorded waypoints by key.
func (m *MissionCoordinator) Waypoints() map[int]Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.waypoints)
}
