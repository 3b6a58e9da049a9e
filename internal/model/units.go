package model

import "strings"

// linearUnits maps accepted unit spellings to their canonical name.
var linearUnits = map[string]string{
	"m": "Meters", "meter": "Meters", "meters": "Meters", "metre": "Meters", "metres": "Meters",
	"km": "Kilometers", "kilometer": "Kilometers", "kilometers": "Kilometers",
	"cm": "Centimeters", "centimeter": "Centimeters", "centimeters": "Centimeters",
	"mm": "Millimeters", "millimeter": "Millimeters", "millimeters": "Millimeters",
	"ft": "Feet", "foot": "Feet", "feet": "Feet",
	"in": "Inches", "inch": "Inches", "inches": "Inches",
	"yd": "Yards", "yard": "Yards", "yards": "Yards",
	"mi": "Miles", "mile": "Miles", "miles": "Miles",
	"nm": "NauticalMiles", "nauticalmile": "NauticalMiles", "nauticalmiles": "NauticalMiles",
	"dd": "DecimalDegrees", "decimaldegrees": "DecimalDegrees", "degrees": "DecimalDegrees",
	"unknown": "Unknown",
}

// metersPerUnit holds conversion factors for units that have one.
var metersPerUnit = map[string]float64{
	"Meters":        1,
	"Kilometers":    1000,
	"Centimeters":   0.01,
	"Millimeters":   0.001,
	"Feet":          0.3048,
	"Inches":        0.0254,
	"Yards":         0.9144,
	"Miles":         1609.344,
	"NauticalMiles": 1852,
}

// CanonicalUnit resolves a unit spelling ("km", "Meters", "nautical miles")
// to its canonical name. The empty unit resolves to "".
func CanonicalUnit(unit string) (string, bool) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(unit), " ", ""))
	if key == "" {
		return "", true
	}
	canon, ok := linearUnits[key]
	return canon, ok
}

// Meters converts the distance to meters. It returns false when the unit
// has no fixed conversion (empty, Unknown or DecimalDegrees); callers
// then use Value in the units of the data's coordinate system.
func (d Distance) Meters() (float64, bool) {
	f, ok := metersPerUnit[d.Unit]
	if !ok {
		return 0, false
	}
	return d.Value * f, true
}
