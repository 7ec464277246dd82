package nav

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// UpdateKind identifies one latest-value slot of the inbox.
type UpdateKind int

const (
	UpdateScan UpdateKind = iota
	UpdatePose
	UpdateTargeting
	UpdateZone
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateScan:
		return "scan"
	case UpdatePose:
		return "pose"
	case UpdateTargeting:
		return "targeting"
	case UpdateZone:
		return "zone"
	default:
		return fmt.Sprintf("UpdateKind(%d)", int(k))
	}
}

// TargetingStatus is the payload of a targeting mission event.
type TargetingStatus int

const (
	// TargetingOther is any status the engine does not act on; it resets a
	// detection that has not been engaged yet.
	TargetingOther TargetingStatus = iota
	TargetingDetected
	TargetingFinished
)

// ZoneStatus is the payload of a zone mission event.
type ZoneStatus int

const (
	ZoneLocated ZoneStatus = iota + 1
	ZoneFinishedLoading
)

// Update is one inbound message handed to the engine. The sender gives up
// ownership of Scan.
type Update struct {
	Kind      UpdateKind
	Scan      RangeScan
	Pose      Pose
	Targeting TargetingStatus
	// WaypointKey optionally names the waypoint of a detection.
	WaypointKey *int
	Zone        ZoneStatus
}

// InboxStats counts inbox traffic.
type InboxStats struct {
	Received    uint64 `json:"received"`
	Overwritten uint64 `json:"overwritten"`
	Pending     int    `json:"pending"`
}

// Inbox hands updates from the transport goroutine to the control thread.
// Each kind has a single pending slot: a newer update of the same kind
// replaces an unserviced older one.
type Inbox struct {
	mu     sync.Mutex
	slots  map[UpdateKind]Update
	order  []UpdateKind
	notify chan struct{}
	stats  InboxStats
}

// NewInbox returns an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{
		slots:  make(map[UpdateKind]Update),
		notify: make(chan struct{}, 1),
	}
}

// Put stores u, replacing any pending update of the same kind. Safe for
// concurrent use.
func (b *Inbox) Put(u Update) {
	b.mu.Lock()
	b.stats.Received++
	if _, pending := b.slots[u.Kind]; pending {
		b.stats.Overwritten++
	} else {
		b.order = append(b.order, u.Kind)
	}
	b.slots[u.Kind] = u
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Next removes and returns the oldest pending update, waiting at most wait
// for one to arrive. It returns false when nothing arrived in time, and the
// context error when ctx ends first.
func (b *Inbox) Next(ctx context.Context, wait time.Duration) (Update, bool, error) {
	if u, ok := b.pop(); ok {
		return u, true, nil
	}
	if wait <= 0 {
		return Update{}, false, ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return Update{}, false, ctx.Err()
		case <-timer.C:
			u, ok := b.pop()
			return u, ok, nil
		case <-b.notify:
			if u, ok := b.pop(); ok {
				return u, true, nil
			}
		}
	}
}

func (b *Inbox) pop() (Update, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		return Update{}, false
	}
	kind := b.order[0]
	b.order = b.order[1:]
	u := b.slots[kind]
	delete(b.slots, kind)
	return u, true
}

// Stats returns a copy of the inbox counters.
func (b *Inbox) Stats() InboxStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Pending = len(b.order)
	return s
}
