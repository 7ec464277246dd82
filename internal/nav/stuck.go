package nav

import (
	"fmt"
	"time"

	"github.com/banshee-data/wallnav/internal/timeutil"
)

// StuckAction is what the loop must do after a progress check.
type StuckAction int

const (
	StuckNone StuckAction = iota
	// StuckArmed: the reference point was just captured; the loop stops the
	// robot and pauses before continuing.
	StuckArmed
	// StuckEscalate: the robot is back at the reference point with no zone
	// found; the wall offset must grow.
	StuckEscalate
)

func (a StuckAction) String() string {
	switch a {
	case StuckNone:
		return "none"
	case StuckArmed:
		return "armed"
	case StuckEscalate:
		return "escalate"
	default:
		return fmt.Sprintf("StuckAction(%d)", int(a))
	}
}

// StuckLoopPolicy detects the robot circling the same wall loop. It is armed
// once, a fixed delay after the loop starts, by recording the current rounded
// position. From then on, being back at that position after the grace period
// without the zone having been found escalates exactly once and restarts the
// interval from the current position.
type StuckLoopPolicy struct {
	cfg   StuckPolicyConfig
	clock timeutil.Clock

	started     bool
	armAt       time.Time
	armed       bool
	ref         Position
	refAt       time.Time
	escalations int
}

// NewStuckLoopPolicy returns a policy that is not started yet.
func NewStuckLoopPolicy(cfg StuckPolicyConfig, clock timeutil.Clock) *StuckLoopPolicy {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &StuckLoopPolicy{cfg: cfg, clock: clock}
}

// Start marks the beginning of wall following.
func (s *StuckLoopPolicy) Start() {
	s.started = true
	s.armAt = s.clock.Now().Add(s.cfg.ArmDelay)
}

// Observe checks progress at pos.
func (s *StuckLoopPolicy) Observe(pos Position, zoneFound bool) StuckAction {
	if !s.started {
		return StuckNone
	}
	now := s.clock.Now()
	pos = pos.Rounded()
	if !s.armed {
		if now.Before(s.armAt) {
			return StuckNone
		}
		s.armed = true
		s.ref, s.refAt = pos, now
		return StuckArmed
	}
	if zoneFound || pos != s.ref || now.Sub(s.refAt) < s.cfg.Grace {
		return StuckNone
	}
	s.ref, s.refAt = pos, now
	s.escalations++
	return StuckEscalate
}

// Reference returns the armed reference point.
func (s *StuckLoopPolicy) Reference() (Position, bool) {
	return s.ref, s.armed
}

// Escalations counts offset increases so far.
func (s *StuckLoopPolicy) Escalations() int { return s.escalations }
