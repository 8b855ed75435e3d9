package gps

import "math"

const knotsToMS = 0.514444

// Fix represents a single combined GPS fix suitable for JSON and MQTT. The
// navigator uses fixes as the pose/velocity anchor against which
// preintegrated motion is compared.
type Fix struct {
	Time       string  `json:"time"`        // e.g. "12:34:56"
	Date       string  `json:"date"`        // e.g. "2026-08-26"
	Latitude   float64 `json:"lat"`         // decimal degrees
	Longitude  float64 `json:"lon"`         // decimal degrees
	SpeedKnots float64 `json:"speed_knots"` // speed over ground
	CourseDeg  float64 `json:"course_deg"`  // course over ground
	Validity   string  `json:"validity"`    // "A" (valid) / "V" (void), etc.
}

// Valid reports whether the receiver flagged the fix as usable.
func (f Fix) Valid() bool {
	return f.Validity == "A"
}

// VelocityNE converts speed/course over ground into north and east velocity
// components in m/s.
func (f Fix) VelocityNE() (north, east float64) {
	speed := f.SpeedKnots * knotsToMS
	course := f.CourseDeg * math.Pi / 180
	return speed * math.Cos(course), speed * math.Sin(course)
}
