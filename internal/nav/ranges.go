package nav

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrNoScan is returned when no range scan has been received yet.
var ErrNoScan = errors.New("no range scan received yet")

// DefaultClearDistance is reported for a window without a single valid return.
const DefaultClearDistance = 100.0

// Direction names one directional distance.
type Direction int

const (
	DirFront Direction = iota
	DirLeftFront
	DirRightFront
	DirLeftBack
	DirBack
	DirRear
	DirLeft
	DirRight
)

func (d Direction) String() string {
	switch d {
	case DirFront:
		return "front"
	case DirLeftFront:
		return "left-front"
	case DirRightFront:
		return "right-front"
	case DirLeftBack:
		return "left-back"
	case DirBack:
		return "back"
	case DirRear:
		return "rear"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Window is an inclusive angular slice of a scan in degrees. When Wrap is set
// and Start > End the window runs through 359° back to 0°.
type Window struct {
	Start int
	End   int
	Wrap  bool
}

// WindowSet maps each direction of interest to its window.
type WindowSet map[Direction]Window

// WallFollowWindows are the narrow windows read by the wall follower.
var WallFollowWindows = WindowSet{
	DirFront:      {Start: 354, End: 5, Wrap: true},
	DirLeftFront:  {Start: 40, End: 50},
	DirRightFront: {Start: 310, End: 320},
	DirLeftBack:   {Start: 132, End: 137},
	DirBack:       {Start: 175, End: 185},
}

// QuadrantWindows partition the scan into four 90° sectors for wall
// acquisition. The order front, left, rear, right is the rotation order in
// multiples of 90°.
var QuadrantWindows = WindowSet{
	DirFront: {Start: 315, End: 44, Wrap: true},
	DirLeft:  {Start: 45, End: 134},
	DirRear:  {Start: 135, End: 224},
	DirRight: {Start: 225, End: 314},
}

// DirectionalDistances is the reduced view of one scan. Directions that were
// not part of the aggregated WindowSet hold the clear sentinel.
type DirectionalDistances struct {
	Front      float64
	LeftFront  float64
	RightFront float64
	LeftBack   float64
	Back       float64
	Rear       float64
	Left       float64
	Right      float64
}

// Get returns the distance for dir.
func (d DirectionalDistances) Get(dir Direction) float64 {
	switch dir {
	case DirFront:
		return d.Front
	case DirLeftFront:
		return d.LeftFront
	case DirRightFront:
		return d.RightFront
	case DirLeftBack:
		return d.LeftBack
	case DirBack:
		return d.Back
	case DirRear:
		return d.Rear
	case DirLeft:
		return d.Left
	case DirRight:
		return d.Right
	}
	return math.NaN()
}

func (d *DirectionalDistances) set(dir Direction, v float64) {
	switch dir {
	case DirFront:
		d.Front = v
	case DirLeftFront:
		d.LeftFront = v
	case DirRightFront:
		d.RightFront = v
	case DirLeftBack:
		d.LeftBack = v
	case DirBack:
		d.Back = v
	case DirRear:
		d.Rear = v
	case DirLeft:
		d.Left = v
	case DirRight:
		d.Right = v
	}
}

// RangeAggregator reduces scans to directional distances.
type RangeAggregator struct {
	// ClearDistance is reported for windows with no valid sample.
	ClearDistance float64
}

// NewRangeAggregator returns an aggregator using clear as the empty-window
// sentinel; a non-positive value selects DefaultClearDistance.
func NewRangeAggregator(clear float64) RangeAggregator {
	if clear <= 0 {
		clear = DefaultClearDistance
	}
	return RangeAggregator{ClearDistance: clear}
}

// Aggregate computes every direction in set from scan.
func (a RangeAggregator) Aggregate(scan RangeScan, set WindowSet) (DirectionalDistances, error) {
	if len(scan) == 0 {
		return DirectionalDistances{}, ErrNoScan
	}
	clear := a.clear()
	out := DirectionalDistances{
		Front: clear, LeftFront: clear, RightFront: clear, LeftBack: clear,
		Back: clear, Rear: clear, Left: clear, Right: clear,
	}
	for dir, w := range set {
		out.set(dir, a.Mean(scan, w))
	}
	return out, nil
}

// Mean is the mean of the valid samples inside w. Zero, negative and NaN
// samples are skipped; +Inf counts as a far return.
func (a RangeAggregator) Mean(scan RangeScan, w Window) float64 {
	valid := make([]float64, 0, 16)
	for _, i := range w.indices(len(scan)) {
		v := scan[i]
		if math.IsNaN(v) || v <= 0 {
			continue
		}
		valid = append(valid, v)
	}
	if len(valid) == 0 {
		return a.clear()
	}
	return stat.Mean(valid, nil)
}

func (a RangeAggregator) clear() float64 {
	if a.ClearDistance <= 0 {
		return DefaultClearDistance
	}
	return a.ClearDistance
}

// indices maps the window onto sample indices of an n-sample scan.
func (w Window) indices(n int) []int {
	if n == 0 {
		return nil
	}
	toIndex := func(deg int) int {
		i := int(math.Round(float64(deg) * float64(n) / 360.0))
		if i >= n {
			i = n - 1
		}
		if i < 0 {
			i = 0
		}
		return i
	}
	lo, hi := toIndex(w.Start), toIndex(w.End)

	var out []int
	switch {
	case lo <= hi:
		for i := lo; i <= hi; i++ {
			out = append(out, i)
		}
	case w.Wrap:
		for i := lo; i < n; i++ {
			out = append(out, i)
		}
		for i := 0; i <= hi; i++ {
			out = append(out, i)
		}
	}
	return out
}
