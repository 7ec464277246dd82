// Package units provides angle units and conversions shared by the engine
// and its debug surfaces.
package units

import (
	"math"
	"slices"
	"strings"
)

// Angle unit names
const (
	Radians = "rad"
	Degrees = "deg"
)

// ValidAngleUnits contains all valid angle unit values
var ValidAngleUnits = []string{Radians, Degrees}

// IsValid checks if the given angle unit is known
func IsValid(unit string) bool {
	return slices.Contains(ValidAngleUnits, unit)
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidAngleUnits, ", ")
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }

// NormalizeAngle wraps rad into (-π, π].
func NormalizeAngle(rad float64) float64 {
	a := math.Mod(rad+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// ConvertAngle converts a heading in radians to the given unit. Unknown units
// return the input unchanged.
func ConvertAngle(rad float64, unit string) float64 {
	if unit == Degrees {
		return RadToDeg(rad)
	}
	return rad
}
