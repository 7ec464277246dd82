package nav

import (
	"errors"
	"fmt"

	"github.com/banshee-data/wallnav/internal/monitoring"
)

// ErrUnhandledConfiguration marks a sensor snapshot no wall-following case
// covers. It only occurs on exact threshold equality.
var ErrUnhandledConfiguration = errors.New("unhandled sensor configuration")

// Fixed shape factors of the wall-following cases.
const (
	uTurnFactor        = 1.6 // left-back beyond this many offsets means the wall ended
	uTurnLinearFactor  = 0.6
	uTurnAngularFactor = 1.2
	reverseFactor      = 0.7
	pivotFactor        = 1.4 // left-front and front near: rotate harder
	cornerFactor       = 2.0
)

// Case identifies which wall-following rule matched.
type Case int

const (
	CaseClear Case = iota + 1
	CaseReverse
	CaseFront
	CaseLeftFront
	CaseRightFront
	CaseFrontRightFront
	CaseLeftFrontFront
	CaseBoxed
	CaseDiagonal
	CaseUnhandled
)

func (c Case) String() string {
	switch c {
	case CaseClear:
		return "clear"
	case CaseReverse:
		return "reverse"
	case CaseFront:
		return "front"
	case CaseLeftFront:
		return "left-front"
	case CaseRightFront:
		return "right-front"
	case CaseFrontRightFront:
		return "front+right-front"
	case CaseLeftFrontFront:
		return "left-front+front"
	case CaseBoxed:
		return "left-front+front+right-front"
	case CaseDiagonal:
		return "left-front+right-front"
	case CaseUnhandled:
		return "unhandled"
	default:
		return fmt.Sprintf("Case(%d)", int(c))
	}
}

// proximity classifies the three forward-facing directions. A direction
// exactly on its threshold is neither near nor far.
type proximity struct {
	lfNear, lfFar bool
	fNear, fFar   bool
	rfNear, rfFar bool
}

func classifyProximity(d DirectionalDistances, p Params) proximity {
	off, fwd := p.WallOffset, p.FrontThreshold()
	return proximity{
		lfNear: d.LeftFront < off, lfFar: d.LeftFront > off,
		fNear: d.Front < fwd, fFar: d.Front > fwd,
		rfNear: d.RightFront < off, rfFar: d.RightFront > off,
	}
}

type rule struct {
	c     Case
	match func(pr proximity, d DirectionalDistances, p Params) bool
}

// rules is evaluated in order and the first match wins. The reverse check sits
// second so an open-ahead reading is never overridden by a noisy short front.
var rules = []rule{
	{CaseClear, func(pr proximity, _ DirectionalDistances, _ Params) bool { return pr.lfFar && pr.fFar && pr.rfFar }},
	{CaseReverse, func(_ proximity, d DirectionalDistances, p Params) bool { return d.Front < p.ReverseDistance }},
	{CaseFront, func(pr proximity, _ DirectionalDistances, _ Params) bool { return pr.lfFar && pr.fNear && pr.rfFar }},
	{CaseLeftFront, func(pr proximity, _ DirectionalDistances, _ Params) bool { return pr.lfNear && pr.fFar && pr.rfFar }},
	{CaseRightFront, func(pr proximity, _ DirectionalDistances, _ Params) bool { return pr.lfFar && pr.fFar && pr.rfNear }},
	{CaseFrontRightFront, func(pr proximity, _ DirectionalDistances, _ Params) bool { return pr.lfFar && pr.fNear && pr.rfNear }},
	{CaseLeftFrontFront, func(pr proximity, _ DirectionalDistances, _ Params) bool { return pr.lfNear && pr.fNear && pr.rfFar }},
	{CaseBoxed, func(pr proximity, _ DirectionalDistances, _ Params) bool { return pr.lfNear && pr.fNear && pr.rfNear }},
	{CaseDiagonal, func(pr proximity, _ DirectionalDistances, _ Params) bool { return pr.lfNear && pr.fFar && pr.rfNear }},
}

// Classify returns the first matching case, or CaseUnhandled.
func Classify(d DirectionalDistances, p Params) Case {
	pr := classifyProximity(d, p)
	for _, r := range rules {
		if r.match(pr, d, p) {
			return r.c
		}
	}
	return CaseUnhandled
}

// Decision is the outcome of one wall-following step.
type Decision struct {
	Case    Case
	State   NavState // meaningless when Case is CaseUnhandled
	Command Twist
}

// Decide maps a snapshot to a command. It is a pure function of its inputs.
//
// Angular speed is positive counter-clockwise, so positive turns toward the
// wall on the left.
func Decide(d DirectionalDistances, p Params) Decision {
	c := Classify(d, p)
	v := p.LinearSpeed
	corner := p.CorneringFraction * v

	switch c {
	case CaseClear:
		if d.LeftBack >= p.UTurnThreshold() {
			return Decision{c, UTurn, Drive(uTurnLinearFactor*v, uTurnAngularFactor*p.TurnSpeedSlow)}
		}
		return Decision{c, FindWall, Drive(v, p.TurnSpeedSlow)}
	case CaseReverse:
		if d.Back < p.ReverseDistance {
			// too tight to back up
			return Decision{c, Reverse, Drive(0, -p.TurnSpeedFast)}
		}
		return Decision{c, Reverse, Drive(-reverseFactor*v, 0)}
	case CaseFront:
		return Decision{c, TurnRight, Drive(corner, p.TurnSpeedFast)}
	case CaseLeftFront:
		if d.LeftFront < p.SnakingRadius() {
			return Decision{c, TurnRight, Drive(v, -p.TurnSpeedSlow)}
		}
		return Decision{c, FollowWall, Drive(v, 0)}
	case CaseRightFront:
		return Decision{c, FindWall, Drive(corner, p.TurnSpeedSlow)}
	case CaseFrontRightFront:
		return Decision{c, TurnRight, Drive(corner, -p.TurnSpeedFast)}
	case CaseLeftFrontFront:
		return Decision{c, TurnRight, Drive(0, -pivotFactor*p.TurnSpeedFast)}
	case CaseBoxed:
		return Decision{c, TurnRight, Drive(0, -p.TurnSpeedFast)}
	case CaseDiagonal:
		if d.Front < p.CornerThreshold() {
			return Decision{c, FindWall, Drive(0, -p.TurnSpeedFast)}
		}
		return Decision{c, FindWall, Drive(corner, p.TurnSpeedSlow)}
	}
	return Decision{Case: CaseUnhandled, Command: Halt}
}

// WallFollowDecider runs Decide and reports state changes.
type WallFollowDecider struct {
	log *TransitionLog
}

// NewWallFollowDecider returns a decider reporting to log.
func NewWallFollowDecider(log *TransitionLog) *WallFollowDecider {
	return &WallFollowDecider{log: log}
}

// Step decides one command. An unhandled configuration yields the zero
// command, a diagnostic, and ErrUnhandledConfiguration.
func (w *WallFollowDecider) Step(d DirectionalDistances, p Params) (Decision, error) {
	dec := Decide(d, p)
	if dec.Case == CaseUnhandled {
		monitoring.Diagf("unhandled sensor configuration: left-front=%.3f front=%.3f right-front=%.3f offset=%.3f",
			d.LeftFront, d.Front, d.RightFront, p.WallOffset)
		return dec, ErrUnhandledConfiguration
	}
	w.log.Nav(dec.State)
	return dec, nil
}
