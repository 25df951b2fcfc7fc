// Package geom provides geometry primitives for terrain tiling.
package geom

import "math"

// Point is a 2D coordinate.
type Point struct {
	X, Y float64
}

// Add returns p + other.
func (p Point) Add(other Point) Point {
	return Point{p.X + other.X, p.Y + other.Y}
}

// Sub returns p - other.
func (p Point) Sub(other Point) Point {
	return Point{p.X - other.X, p.Y - other.Y}
}

// Vertex is a 3D coordinate with vector arithmetic.
type Vertex struct {
	X, Y, Z float64
}

// Add returns v + other.
func (v Vertex) Add(other Vertex) Vertex {
	return Vertex{v.X + other.X, v.Y + other.Y, v.Z + other.Z}
}

// Sub returns v - other.
func (v Vertex) Sub(other Vertex) Vertex {
	return Vertex{v.X - other.X, v.Y - other.Y, v.Z - other.Z}
}

// Scale returns v * s.
func (v Vertex) Scale(s float64) Vertex {
	return Vertex{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product.
func (v Vertex) Dot(other Vertex) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns the cross product.
func (v Vertex) Cross(other Vertex) Vertex {
	return Vertex{
		v.Y*other.Z - v.Z*other.Y,
		v.Z*other.X - v.X*other.Z,
		v.X*other.Y - v.Y*other.X,
	}
}

// MagnitudeSquared returns the squared magnitude.
func (v Vertex) MagnitudeSquared() float64 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

// Magnitude returns the magnitude.
func (v Vertex) Magnitude() float64 {
	return math.Sqrt(v.MagnitudeSquared())
}

// Normalize returns a unit vector.
func (v Vertex) Normalize() Vertex {
	m := v.Magnitude()
	if m == 0 {
		return Vertex{}
	}
	return Vertex{v.X / m, v.Y / m, v.Z / m}
}

// Distance returns the distance to another point.
func (v Vertex) Distance(other Vertex) float64 {
	return v.Sub(other).Magnitude()
}
