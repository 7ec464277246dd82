package units

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit string
		want bool
	}{
		{"rad", true},
		{"deg", true},
		{"mph", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.want)
		}
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "rad, deg" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}

func TestDegRadRoundTrip(t *testing.T) {
	if got := DegToRad(180); math.Abs(got-math.Pi) > 1e-12 {
		t.Errorf("DegToRad(180) = %v", got)
	}
	if got := RadToDeg(math.Pi / 2); math.Abs(got-90) > 1e-12 {
		t.Errorf("RadToDeg(pi/2) = %v", got)
	}
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
	}
	for _, tt := range tests {
		if got := NormalizeAngle(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeAngle(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConvertAngle(t *testing.T) {
	if got := ConvertAngle(math.Pi, Degrees); math.Abs(got-180) > 1e-9 {
		t.Errorf("ConvertAngle deg = %v", got)
	}
	if got := ConvertAngle(1.5, Radians); got != 1.5 {
		t.Errorf("ConvertAngle rad = %v", got)
	}
}
