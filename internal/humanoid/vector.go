// internal/humanoid/vector.go
package humanoid

import "math"

// Vector2D represents a point or vector in viewport space.
type Vector2D struct {
	X, Y float64
}

func (v Vector2D) Add(other Vector2D) Vector2D {
	return Vector2D{X: v.X + other.X, Y: v.Y + other.Y}
}

func (v Vector2D) Sub(other Vector2D) Vector2D {
	return Vector2D{X: v.X - other.X, Y: v.Y - other.Y}
}

func (v Vector2D) Mul(scalar float64) Vector2D {
	return Vector2D{X: v.X * scalar, Y: v.Y * scalar}
}

// Mag is the vector length.
func (v Vector2D) Mag() float64 {
	return math.Hypot(v.X, v.Y)
}

// Perp returns v rotated by 90 degrees.
func (v Vector2D) Perp() Vector2D {
	return Vector2D{X: -v.Y, Y: v.X}
}

// Clamp keeps the point inside [0,w]x[0,h].
func (v Vector2D) Clamp(w, h float64) Vector2D {
	return Vector2D{X: math.Max(0, math.Min(w, v.X)), Y: math.Max(0, math.Min(h, v.Y))}
}
