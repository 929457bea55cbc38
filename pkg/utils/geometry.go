package utils

import "math"

// Point2D is a Cartesian point in meters.
type Point2D struct {
	X, Y float64
}

// Add returns p+q.
func (p Point2D) Add(q Point2D) Point2D { return Point2D{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q.
func (p Point2D) Sub(q Point2D) Point2D { return Point2D{p.X - q.X, p.Y - q.Y} }

// Scale returns p*s.
func (p Point2D) Scale(s float64) Point2D { return Point2D{p.X * s, p.Y * s} }

// Distance returns the Euclidean distance between p and q.
func (p Point2D) Distance(q Point2D) float64 {
	dx, dy := p.X-q.X, p.Y-q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// AngleBetween returns the signed angle (radians) from (a-p) to (b-p),
// where p is the receiver, mirroring Vector2D::angle in the original
// C++ tracker.
func (p Point2D) AngleBetween(a, b Point2D) float64 {
	ax, ay := a.X-p.X, a.Y-p.Y
	bx, by := b.X-p.X, b.Y-p.Y
	return math.Atan2(ax*by-ay*bx, ax*bx+ay*by)
}

// Pose is a rigid 2D affine transform (rotation + translation) placing a
// device's local frame into the world frame.
type Pose struct {
	TX, TY float64
	Theta  float64 // radians
}

// IdentityPose returns the pose with zero translation and rotation.
func IdentityPose() Pose { return Pose{} }

// ToWorld maps a point from device-local coordinates into world coordinates.
func (p Pose) ToWorld(local Point2D) Point2D {
	c, s := math.Cos(p.Theta), math.Sin(p.Theta)
	return Point2D{
		X: c*local.X - s*local.Y + p.TX,
		Y: s*local.X + c*local.Y + p.TY,
	}
}

// ToLocal maps a point from world coordinates into this device's local frame.
func (p Pose) ToLocal(world Point2D) Point2D {
	dx, dy := world.X-p.TX, world.Y-p.TY
	c, s := math.Cos(-p.Theta), math.Sin(-p.Theta)
	return Point2D{
		X: c*dx - s*dy,
		Y: s*dx + c*dy,
	}
}

// Bounds is an axis-aligned bounding box accumulator.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
	empty      bool
}

// NewBounds returns an empty bounds accumulator.
func NewBounds() Bounds {
	return Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1), empty: true}
}

// Adjust grows the bounds to include p, mirroring adjustBoundingBox in the
// original tracker.
func (b *Bounds) Adjust(p Point2D) {
	if p.X < b.MinX {
		b.MinX = p.X
	}
	if p.X > b.MaxX {
		b.MaxX = p.X
	}
	if p.Y < b.MinY {
		b.MinY = p.Y
	}
	if p.Y > b.MaxY {
		b.MaxY = p.Y
	}
	b.empty = false
}

// Center returns the midpoint of the bounding box.
func (b Bounds) Center() Point2D {
	return Point2D{(b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2}
}

// Empty reports whether no point has been adjusted into the bounds yet.
func (b Bounds) Empty() bool { return b.empty }

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
