// Package vec2d provides the small integer-vector type used throughout the
// tile pipeline to describe positions and sizes on the canvas.
package vec2d

import "fmt"

// Vec2d is a 2-D integer vector, used both as a position (x, y) and as a
// size (width, height) depending on context.
type Vec2d struct {
	X, Y int
}

// Zero is the zero vector.
var Zero = Vec2d{}

func (v Vec2d) Add(other Vec2d) Vec2d {
	return Vec2d{X: v.X + other.X, Y: v.Y + other.Y}
}

func (v Vec2d) Sub(other Vec2d) Vec2d {
	return Vec2d{X: v.X - other.X, Y: v.Y - other.Y}
}

// Min returns the component-wise minimum of v and other.
func (v Vec2d) Min(other Vec2d) Vec2d {
	return Vec2d{X: min(v.X, other.X), Y: min(v.Y, other.Y)}
}

// Area returns X*Y, treating the vector as a size.
func (v Vec2d) Area() int64 {
	return int64(v.X) * int64(v.Y)
}

func (v Vec2d) String() string {
	return fmt.Sprintf("%dx%d", v.X, v.Y)
}

// MaxSizeInRect returns the maximal size a tile placed at position can have
// in order to still fit inside a canvas of size canvasSize, given the tile's
// nominal size. It clips instead of panicking when the tile would overflow.
func MaxSizeInRect(position, tileSize, canvasSize Vec2d) Vec2d {
	return position.Add(tileSize).Min(canvasSize).Sub(position)
}
