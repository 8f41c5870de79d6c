package mathx

import "math"

// Vec3 is a world-space position. X and Y span the ground plane, Z is elevation.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Dist2(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

func (v Vec3) Dist(o Vec3) float64 { return math.Sqrt(v.Dist2(o)) }

// Planar returns the ground-plane components and their length.
func (v Vec3) Planar() (x, y, length float64) {
	return v.X, v.Y, math.Hypot(v.X, v.Y)
}
