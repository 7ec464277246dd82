// Package nav is the reactive navigation engine: range-scan reduction,
// left-wall-following case selection, heading and wall-acquisition
// maneuvers, mission gating and the control loop that sequences them.
package nav

import (
	"fmt"
	"math"
)

// RangeScan is one full sweep of range samples ordered by angle, evenly
// spaced over 360 degrees starting straight ahead and increasing
// counter-clockwise. A zero sample means no return.
type RangeScan []float64

// Vector3 is a linear or angular velocity vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is an orientation in x, y, z, w order.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Twist is a velocity command. The engine only ever sets Linear.X and
// Angular.Z; all other components stay zero.
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// Drive builds a planar Twist.
func Drive(linear, angular float64) Twist {
	return Twist{Linear: Vector3{X: linear}, Angular: Vector3{Z: angular}}
}

// Halt is the zero command.
var Halt = Twist{}

// IsZero reports whether every component is zero.
func (t Twist) IsZero() bool {
	return t == Twist{}
}

// Position is a point in the odometry frame, metres.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rounded returns the position rounded to one decimal, which is the
// resolution at which the stuck-loop policy compares positions.
func (p Position) Rounded() Position {
	r := func(v float64) float64 { return math.Round(v*10) / 10 }
	return Position{X: r(p.X), Y: r(p.Y), Z: r(p.Z)}
}

func (p Position) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// Pose is the latest robot pose snapshot.
type Pose struct {
	Position Position `json:"position"`
	Roll     float64  `json:"roll"`
	Pitch    float64  `json:"pitch"`
	Yaw      float64  `json:"yaw"` // radians, (-π, π]
}

// PoseFromOdometry derives roll, pitch and yaw from an orientation
// quaternion.
func PoseFromOdometry(orientation Quaternion, position Position) Pose {
	roll, pitch, yaw := EulerFromQuaternion(orientation)
	return Pose{Position: position, Roll: roll, Pitch: pitch, Yaw: yaw}
}

// EulerFromQuaternion converts a quaternion into roll, pitch and yaw in
// radians, each counter-clockwise about x, y and z respectively.
func EulerFromQuaternion(q Quaternion) (roll, pitch, yaw float64) {
	t0 := 2.0 * (q.W*q.X + q.Y*q.Z)
	t1 := 1.0 - 2.0*(q.X*q.X+q.Y*q.Y)
	roll = math.Atan2(t0, t1)

	t2 := 2.0 * (q.W*q.Y - q.Z*q.X)
	t2 = math.Max(-1, math.Min(1, t2))
	pitch = math.Asin(t2)

	t3 := 2.0 * (q.W*q.Z + q.X*q.Y)
	t4 := 1.0 - 2.0*(q.Y*q.Y+q.Z*q.Z)
	yaw = math.Atan2(t3, t4)
	return roll, pitch, yaw
}

// QuaternionFromYaw returns the planar orientation with the given yaw.
func QuaternionFromYaw(yaw float64) Quaternion {
	return Quaternion{Z: math.Sin(yaw / 2), W: math.Cos(yaw / 2)}
}

// NavState labels what the wall follower is doing.
type NavState int

const (
	FindWall NavState = iota
	TurnRight
	FollowWall
	UTurn
	InitialPositioning
	Reverse
)

func (s NavState) String() string {
	switch s {
	case FindWall:
		return "FindWall"
	case TurnRight:
		return "TurnRight"
	case FollowWall:
		return "FollowWall"
	case UTurn:
		return "UTurn"
	case InitialPositioning:
		return "InitialPositioning"
	case Reverse:
		return "Reverse"
	default:
		return fmt.Sprintf("NavState(%d)", int(s))
	}
}

// Description is the operator-facing text logged on a transition.
func (s NavState) Description() string {
	switch s {
	case FindWall:
		return "Find the wall"
	case TurnRight:
		return "Turn right"
	case FollowWall:
		return "Follow the wall"
	case UTurn:
		return "U-turn"
	case InitialPositioning:
		return "Initial positioning"
	case Reverse:
		return "Reverse"
	default:
		return s.String()
	}
}

// MissionState labels the mission track, orthogonal to NavState.
type MissionState int

const (
	Idle MissionState = iota
	ZoneFound
	ZoneCleared
	TargetDetected
	TargetCleared
)

func (s MissionState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ZoneFound:
		return "ZoneFound"
	case ZoneCleared:
		return "ZoneCleared"
	case TargetDetected:
		return "TargetDetected"
	case TargetCleared:
		return "TargetCleared"
	default:
		return fmt.Sprintf("MissionState(%d)", int(s))
	}
}

// Description is the operator-facing text logged on a transition.
func (s MissionState) Description() string {
	switch s {
	case Idle:
		return "Idle"
	case ZoneFound:
		return "Loading zone found, waiting to receive payload"
	case ZoneCleared:
		return "Payload received, continuing wall-following"
	case TargetDetected:
		return "Hot target detected, initiating firing sequence"
	case TargetCleared:
		return "Target eliminated"
	default:
		return s.String()
	}
}
