package nav

import (
	"sync"
	"time"

	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/timeutil"
)

// Track distinguishes the two orthogonal state tracks.
type Track string

const (
	TrackWallFollower Track = "wall_follower"
	TrackMission      Track = "mission"
)

// Transition is one logged state change.
type Transition struct {
	Track       Track
	Label       string
	Description string
	At          time.Time
}

// TransitionLog is the change-only log shared by both tracks. A label is
// logged only when it differs from the previously recorded label of either
// track. ZoneCleared and TargetDetected alternate rapidly while a payload is
// handed over during an engagement, so changes between those two are
// recorded silently.
type TransitionLog struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	last    Transition
	hasLast bool
	history []Transition

	// OnTransition, if set, receives every logged transition.
	OnTransition func(Transition)
}

// NewTransitionLog creates a log stamped by clock.
func NewTransitionLog(clock timeutil.Clock) *TransitionLog {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &TransitionLog{clock: clock}
}

// Nav records a wall-follower label.
func (l *TransitionLog) Nav(s NavState) {
	l.record(Transition{Track: TrackWallFollower, Label: s.String(), Description: s.Description()})
}

// Mission records a mission label.
func (l *TransitionLog) Mission(s MissionState) {
	l.record(Transition{Track: TrackMission, Label: s.String(), Description: s.Description()})
}

func (l *TransitionLog) record(t Transition) {
	l.mu.Lock()
	prev, hadPrev := l.last, l.hasLast
	if hadPrev && prev.Track == t.Track && prev.Label == t.Label {
		l.mu.Unlock()
		return
	}
	t.At = l.clock.Now()
	l.last, l.hasLast = t, true
	if hadPrev && suppressed(prev, t) {
		l.mu.Unlock()
		return
	}
	l.history = append(l.history, t)
	hook := l.OnTransition
	l.mu.Unlock()

	switch t.Track {
	case TrackWallFollower:
		monitoring.Logf("Wall follower - [%s] - %s", t.Label, t.Description)
	default:
		monitoring.Logf("Targeting - [%s] - %s", t.Label, t.Description)
	}
	if hook != nil {
		hook(t)
	}
}

func suppressed(prev, next Transition) bool {
	if prev.Track != TrackMission || next.Track != TrackMission {
		return false
	}
	a, b := ZoneCleared.String(), TargetDetected.String()
	return (prev.Label == a && next.Label == b) || (prev.Label == b && next.Label == a)
}

// Last returns the most recently recorded label, logged or not.
func (l *TransitionLog) Last() (Transition, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.hasLast
}

// History returns a copy of all logged transitions.
func (l *TransitionLog) History() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transition, len(l.history))
	copy(out, l.history)
	return out
}
