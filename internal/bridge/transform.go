package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/wallnav/internal/nav"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

var (
	// ErrTransformNotFound means no chain of transforms links the frames.
	ErrTransformNotFound = errors.New("transform not found")
	// ErrTransformExtrapolation means a transform in the chain is older than
	// the tolerance allows.
	ErrTransformExtrapolation = errors.New("transform too old")
)

// maxChain bounds a lookup walk; frame trees on the robot are a few levels deep.
const maxChain = 16

// Transform is the pose of Child in Parent.
type Transform struct {
	Parent      string
	Child       string
	Translation nav.Vector3
	Rotation    nav.Quaternion
	Stamp       time.Time
	received    time.Time
}

// Yaw is the heading component of the rotation.
func (t Transform) Yaw() float64 {
	_, _, yaw := nav.EulerFromQuaternion(t.Rotation)
	return yaw
}

// TransformBuffer keeps the latest transform of every child frame and answers
// lookups along the frame tree.
type TransformBuffer struct {
	clock     timeutil.Clock
	tolerance time.Duration

	mu    sync.RWMutex
	edges map[string]Transform // by child frame
}

// NewTransformBuffer returns an empty buffer. Lookups fail with
// ErrTransformExtrapolation when any link was received more than tolerance
// ago; zero disables the check.
func NewTransformBuffer(clock timeutil.Clock, tolerance time.Duration) *TransformBuffer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &TransformBuffer{clock: clock, tolerance: tolerance, edges: make(map[string]Transform)}
}

// Put stores tf as the latest link to its child frame.
func (b *TransformBuffer) Put(tf Transform) {
	tf.received = b.clock.Now()
	b.mu.Lock()
	b.edges[tf.Child] = tf
	b.mu.Unlock()
}

// Lookup returns the pose of source in target.
func (b *TransformBuffer) Lookup(target, source string) (Transform, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := Transform{Parent: target, Child: source, Rotation: nav.Quaternion{W: 1}}
	if target == source {
		out.Stamp = b.clock.Now()
		return out, nil
	}

	// walk up from source, composing child-in-parent links
	frame := source
	var oldest time.Time
	for range maxChain {
		edge, ok := b.edges[frame]
		if !ok {
			return Transform{}, fmt.Errorf("%w: %s -> %s", ErrTransformNotFound, target, source)
		}
		out.Translation, out.Rotation = compose(edge.Translation, edge.Rotation, out.Translation, out.Rotation)
		if oldest.IsZero() || edge.received.Before(oldest) {
			oldest = edge.received
			out.Stamp = edge.Stamp
		}
		frame = edge.Parent
		if frame == target {
			if b.tolerance > 0 && b.clock.Since(oldest) > b.tolerance {
				return Transform{}, fmt.Errorf("%w: %s -> %s is %s old", ErrTransformExtrapolation, target, source, b.clock.Since(oldest))
			}
			return out, nil
		}
	}
	return Transform{}, fmt.Errorf("%w: %s -> %s (chain too long)", ErrTransformNotFound, target, source)
}

// compose returns the parent-frame pose of a child pose (t2, q2) expressed in
// a frame whose own pose in the parent is (t1, q1).
func compose(t1 nav.Vector3, q1 nav.Quaternion, t2 nav.Vector3, q2 nav.Quaternion) (nav.Vector3, nav.Quaternion) {
	r := rotate(q1, t2)
	return nav.Vector3{X: t1.X + r.X, Y: t1.Y + r.Y, Z: t1.Z + r.Z}, mul(q1, q2)
}

func mul(a, b nav.Quaternion) nav.Quaternion {
	return nav.Quaternion{
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
	}
}

func rotate(q nav.Quaternion, v nav.Vector3) nav.Vector3 {
	p := nav.Quaternion{X: v.X, Y: v.Y, Z: v.Z}
	conj := nav.Quaternion{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
	r := mul(mul(q, p), conj)
	return nav.Vector3{X: r.X, Y: r.Y, Z: r.Z}
}
