// Package testutil provides shared test utilities and fixtures.
//
// Scan fixtures are plain []float64 so the nav package's own tests can use
// them without an import cycle.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// ScanSamples is the sample count of the fixture scans: one per degree.
const ScanSamples = 360

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// UniformScan returns a one-sample-per-degree scan with every sample at v.
func UniformScan(v float64) []float64 {
	scan := make([]float64, ScanSamples)
	for i := range scan {
		scan[i] = v
	}
	return scan
}

// SetArc sets the samples from fromDeg to toDeg inclusive, wrapping through
// zero when fromDeg > toDeg.
func SetArc(scan []float64, fromDeg, toDeg int, v float64) {
	n := len(scan)
	for deg := fromDeg; ; deg++ {
		scan[((deg%n)+n)%n] = v
		if ((deg%n)+n)%n == ((toDeg%n)+n)%n {
			return
		}
	}
}

// WallFollowScan builds a scan whose wall-following windows read the given
// distances. Everything else reads far.
func WallFollowScan(front, leftFront, rightFront, leftBack, back float64) []float64 {
	scan := UniformScan(10)
	SetArc(scan, 350, 10, front)
	SetArc(scan, 35, 55, leftFront)
	SetArc(scan, 305, 325, rightFront)
	SetArc(scan, 128, 141, leftBack)
	SetArc(scan, 170, 190, back)
	return scan
}

// QuadrantScan builds a scan whose four 90 degree quadrants read the given
// distances.
func QuadrantScan(front, left, rear, right float64) []float64 {
	scan := make([]float64, ScanSamples)
	SetArc(scan, 315, 44, front)
	SetArc(scan, 45, 134, left)
	SetArc(scan, 135, 224, rear)
	SetArc(scan, 225, 314, right)
	return scan
}
