// Package units converts filter speed output between display units.
// Estimates are always computed in metres per second.
package units

import "strings"

// Supported unit names, as accepted on the command line.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits lists every accepted unit name.
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// factors maps a unit name to its multiplier from m/s.
var factors = map[string]float64{
	MPS:  1,
	MPH:  2.23694,
	KMPH: 3.6,
	KPH:  3.6,
}

// IsValid reports whether unit names a supported speed unit.
func IsValid(unit string) bool {
	_, ok := factors[unit]
	return ok
}

// ValidUnitsString returns the accepted names for error messages.
func ValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed in m/s to the target unit. Unknown
// units pass the value through unchanged.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	if f, ok := factors[targetUnits]; ok {
		return speedMPS * f
	}
	return speedMPS
}
