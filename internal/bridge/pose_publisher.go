package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/serialmux"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

// DefaultPoseInterval is the map2base publish period.
const DefaultPoseInterval = 50 * time.Millisecond

// PosePublisher periodically resolves the robot base in the map frame and
// sends it as a map2base line. Ticks where the lookup fails are skipped.
type PosePublisher struct {
	mux      serialmux.SerialMuxInterface
	tf       *TransformBuffer
	frames   Frames
	clock    timeutil.Clock
	interval time.Duration

	mu     sync.Mutex
	latest *Transform
}

// NewPosePublisher returns a publisher; interval <= 0 uses DefaultPoseInterval.
func NewPosePublisher(mux serialmux.SerialMuxInterface, tf *TransformBuffer, frames Frames, clock timeutil.Clock, interval time.Duration) *PosePublisher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultPoseInterval
	}
	return &PosePublisher{mux: mux, tf: tf, frames: frames.withDefaults(), clock: clock, interval: interval}
}

// Run publishes on every tick until ctx ends.
func (p *PosePublisher) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			p.PublishOnce()
		}
	}
}

// PublishOnce looks up the base pose and sends it. It reports whether a
// line was sent.
func (p *PosePublisher) PublishOnce() bool {
	tf, err := p.tf.Lookup(p.frames.Map, p.frames.Base)
	if err != nil {
		return false
	}
	line, err := EncodeMap2Base(tf)
	if err != nil {
		return false
	}
	if err := p.mux.SendCommand(line); err != nil {
		monitoring.Diagf("map2base send failed: %v", err)
		return false
	}
	p.mu.Lock()
	p.latest = &tf
	p.mu.Unlock()
	return true
}

// Latest returns the last published transform.
func (p *PosePublisher) Latest() (Transform, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return Transform{}, false
	}
	return *p.latest, true
}
