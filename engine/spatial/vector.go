package spatial

import (
	"fmt"
	"math"
)

// Coord is the type of coordinates of entity positions (x, y, z)
type Coord float32

// Vector3 is type of entity position. X and Y span the horizontal plane, Z is the height.
type Vector3 struct {
	X Coord `msgpack:"x"`
	Y Coord `msgpack:"y"`
	Z Coord `msgpack:"z"`
}

func (p Vector3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// DistanceTo calculates distance between two positions
func (p Vector3) DistanceTo(o Vector3) Coord {
	return Coord(math.Sqrt(float64(p.distanceSquare(o))))
}

func (p Vector3) distanceSquare(o Vector3) float64 {
	dx := float64(p.X - o.X)
	dy := float64(p.Y - o.Y)
	dz := float64(p.Z - o.Z)
	return dx*dx + dy*dy + dz*dz
}

// Sub calculates Vector3 p - Vector3 o
func (p Vector3) Sub(o Vector3) Vector3 {
	return Vector3{p.X - o.X, p.Y - o.Y, p.Z - o.Z}
}

func (p Vector3) Add(o Vector3) Vector3 {
	return Vector3{p.X + o.X, p.Y + o.Y, p.Z + o.Z}
}

// Mul calculates Vector3 p * m
func (p Vector3) Mul(m Coord) Vector3 {
	return Vector3{p.X * m, p.Y * m, p.Z * m}
}
