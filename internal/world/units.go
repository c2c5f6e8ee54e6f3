package world

import "math"

// UnitsPerMeter converts raw world coordinates to meters. The client
// reports positions in its own unit; 16.49 units equal one meter.
// Radius configuration is in meters, all internal geometry is in raw
// units — the conversion happens exactly once per query so a stored
// radius and a measured distance are never compared in mixed units.
const UnitsPerMeter = 16.49

// Vec3 is a position in raw world units.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// DistSq returns the squared Euclidean distance to o in world units.
// Membership checks use this form; Dist is reserved for values that are
// actually reported.
func (v Vec3) DistSq(o Vec3) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	dz := v.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

// Dist returns the Euclidean distance to o in world units.
func (v Vec3) Dist(o Vec3) float64 {
	return math.Sqrt(v.DistSq(o))
}

// MetersToUnits converts a length in meters to raw world units.
func MetersToUnits(m float64) float64 { return m * UnitsPerMeter }

// UnitsToMeters converts a length in raw world units to meters.
func UnitsToMeters(u float64) float64 { return u / UnitsPerMeter }
