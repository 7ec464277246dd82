package bridge

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/banshee-data/wallnav/internal/mapsink"
	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/nav"
	"github.com/banshee-data/wallnav/internal/serialmux"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

// Default frame names.
const (
	DefaultMapFrame  = "map"
	DefaultBaseFrame = "base_footprint"
)

// GridSink receives occupancy grids.
type GridSink interface {
	UpdateGrid(mapsink.Grid)
}

// Frames names the map and robot base frames.
type Frames struct {
	Map  string
	Base string
}

func (f Frames) withDefaults() Frames {
	if f.Map == "" {
		f.Map = DefaultMapFrame
	}
	if f.Base == "" {
		f.Base = DefaultBaseFrame
	}
	return f
}

// Stats counts inbound lines by outcome.
type Stats struct {
	Decoded      uint64 `json:"decoded"`
	DecodeErrors uint64 `json:"decode_errors"`
	Ignored      uint64 `json:"ignored"`
	GridsDropped uint64 `json:"grids_dropped"`
}

// Bridge moves traffic between the serial link and the engine. Inbound lines
// become inbox updates; velocity commands go out as cmd_vel lines.
type Bridge struct {
	mux    serialmux.SerialMuxInterface
	inbox  *nav.Inbox
	tf     *TransformBuffer
	grid   GridSink
	frames Frames

	decoded      atomic.Uint64
	decodeErrors atomic.Uint64
	ignored      atomic.Uint64
	gridsDropped atomic.Uint64
}

// New returns a Bridge. grid may be nil.
func New(mux serialmux.SerialMuxInterface, inbox *nav.Inbox, tf *TransformBuffer, grid GridSink, frames Frames) *Bridge {
	if tf == nil {
		tf = NewTransformBuffer(timeutil.RealClock{}, 0)
	}
	return &Bridge{mux: mux, inbox: inbox, tf: tf, grid: grid, frames: frames.withDefaults()}
}

// Transforms returns the bridge's transform buffer.
func (b *Bridge) Transforms() *TransformBuffer { return b.tf }

// Run subscribes to the link and handles lines until ctx ends or the link
// closes.
func (b *Bridge) Run(ctx context.Context) error {
	id, lines := b.mux.Subscribe()
	defer b.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := b.HandleLine([]byte(line)); err != nil {
				b.decodeErrors.Add(1)
				monitoring.Diagf("bridge: dropping line: %v", err)
			}
		}
	}
}

// HandleLine decodes one line and routes it.
func (b *Bridge) HandleLine(line []byte) error {
	msg, err := Decode(line)
	if err != nil {
		return err
	}
	b.decoded.Add(1)

	switch m := msg.(type) {
	case *ScanMessage:
		b.inbox.Put(nav.Update{Kind: nav.UpdateScan, Scan: nav.RangeScan(m.Ranges)})
	case *OdomMessage:
		b.inbox.Put(nav.Update{Kind: nav.UpdatePose, Pose: nav.PoseFromOdometry(m.Orientation, m.Position)})
	case *TargetingMessage:
		b.inbox.Put(nav.Update{Kind: nav.UpdateTargeting, Targeting: TargetingStatus(m.Data), WaypointKey: m.Key})
	case *NFCMessage:
		status, ok := ZoneStatus(m.Data)
		if !ok {
			b.ignored.Add(1)
			return nil
		}
		b.inbox.Put(nav.Update{Kind: nav.UpdateZone, Zone: status})
	case *TransformMessage:
		b.tf.Put(Transform{
			Parent:      m.Parent,
			Child:       m.Child,
			Translation: m.Translation,
			Rotation:    m.Rotation,
			Stamp:       StampTime(m.Stamp),
		})
	case *MapMessage:
		b.handleMap(m)
	}
	return nil
}

// handleMap forwards the grid only once the robot can be placed on it.
func (b *Bridge) handleMap(m *MapMessage) {
	if b.grid == nil {
		return
	}
	if _, err := b.tf.Lookup(b.frames.Map, b.frames.Base); err != nil {
		b.gridsDropped.Add(1)
		if !errors.Is(err, ErrTransformNotFound) {
			monitoring.Diagf("bridge: map update skipped: %v", err)
		}
		return
	}
	b.grid.UpdateGrid(mapsink.Grid{
		Width:      m.Width,
		Height:     m.Height,
		Resolution: m.Resolution,
		Origin:     m.Origin,
		Cells:      m.Data,
	})
}

// PublishVelocity sends t as a cmd_vel line.
func (b *Bridge) PublishVelocity(t nav.Twist) error {
	line, err := EncodeVelocity(t)
	if err != nil {
		return err
	}
	return b.mux.SendCommand(line)
}

// Stats returns the inbound counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Decoded:      b.decoded.Load(),
		DecodeErrors: b.decodeErrors.Load(),
		Ignored:      b.ignored.Load(),
		GridsDropped: b.gridsDropped.Load(),
	}
}
