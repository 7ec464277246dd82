package nav

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoPose is returned when no pose has been received yet.
var ErrNoPose = errors.New("no pose received yet")

// Sensors is the control thread's view of the inbound side: servicing one
// pending update at a time and reading the latest values.
type Sensors interface {
	// SpinOnce services at most one pending inbound update.
	SpinOnce(ctx context.Context) error
	// Scan returns the latest range scan, empty before the first one.
	Scan() RangeScan
	// Pose returns the latest pose and whether one has been received.
	Pose() (Pose, bool)
}

// Cells are the latest-value cells of the engine, fed from an Inbox. Only the
// control thread writes them; readers on other goroutines (the debug API) get
// consistent copies.
type Cells struct {
	inbox   *Inbox
	poll    time.Duration
	mission *MissionCoordinator

	// OnPose, if set, observes every applied pose update.
	OnPose func(Pose)

	mu      sync.RWMutex
	scan    RangeScan
	pose    Pose
	hasPose bool
}

// NewCells returns cells serviced from inbox. Mission events are forwarded to
// mission.
func NewCells(inbox *Inbox, mission *MissionCoordinator, poll time.Duration) *Cells {
	return &Cells{inbox: inbox, mission: mission, poll: poll}
}

// SpinOnce applies at most one pending update, waiting up to the poll
// interval for one to arrive.
func (c *Cells) SpinOnce(ctx context.Context) error {
	u, ok, err := c.inbox.Next(ctx, c.poll)
	if err != nil {
		return err
	}
	if ok {
		c.apply(u)
	}
	return nil
}

func (c *Cells) apply(u Update) {
	switch u.Kind {
	case UpdateScan:
		c.mu.Lock()
		c.scan = u.Scan
		c.mu.Unlock()
	case UpdatePose:
		c.mu.Lock()
		c.pose, c.hasPose = u.Pose, true
		c.mu.Unlock()
		if c.OnPose != nil {
			c.OnPose(u.Pose)
		}
	case UpdateTargeting:
		pose, _ := c.Pose()
		c.mission.HandleTargeting(u.Targeting, u.WaypointKey, pose.Position)
	case UpdateZone:
		c.mission.HandleZone(u.Zone)
	}
}

// Scan returns the latest range scan.
func (c *Cells) Scan() RangeScan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scan
}

// Pose returns the latest pose.
func (c *Cells) Pose() (Pose, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pose, c.hasPose
}
