// Package terrain models the playfield: fixed solid circles plus craters
// carved into them by explosions.
package terrain

import (
	"math"
	"math/rand"
)

// Point is a position in world pixels. Y grows downward.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Circle is used both for solid obstacles and for carved holes.
type Circle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R float64 `json:"r"`
}

// Contains reports whether p lies inside or on the circle.
func (c Circle) Contains(p Point) bool {
	dx, dy := p.X-c.X, p.Y-c.Y
	return dx*dx+dy*dy <= c.R*c.R
}

// Terrain is owned by a single session. Circles are fixed at creation; holes
// are only ever appended.
type Terrain struct {
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Circles []Circle `json:"circles"`
	Holes   []Circle `json:"holes"`
}

// New returns an empty field of the given size.
func New(width, height float64, circles []Circle) *Terrain {
	return &Terrain{Width: width, Height: height, Circles: circles}
}

// InBounds reports whether p is inside the playfield.
func (t *Terrain) InBounds(p Point) bool {
	return p.X >= 0 && p.X <= t.Width && p.Y >= 0 && p.Y <= t.Height
}

// Clamp moves p onto the nearest point of the playfield. NaN coordinates
// clamp to 0.
func (t *Terrain) Clamp(p Point) Point {
	return Point{X: clamp(p.X, t.Width), Y: clamp(p.Y, t.Height)}
}

func clamp(v, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(hi, v))
}

// Solid reports whether p is inside an obstacle that has not been carved away.
// Bounds are not considered.
func (t *Terrain) Solid(p Point) bool {
	inCircle := false
	for _, c := range t.Circles {
		if c.Contains(p) {
			inCircle = true
			break
		}
	}
	if !inCircle {
		return false
	}
	for _, h := range t.Holes {
		if h.Contains(p) {
			return false
		}
	}
	return true
}

// Collides is the trajectory stop test: anything outside the playfield
// collides, as does solid terrain.
func (t *Terrain) Collides(p Point) bool {
	if !t.InBounds(p) {
		return true
	}
	return t.Solid(p)
}

// AddHole carves a crater.
func (t *Terrain) AddHole(h Circle) {
	t.Holes = append(t.Holes, h)
}

// Clearance returns the distance from p to the nearest obstacle edge,
// ignoring holes, or +Inf for an empty field. Negative inside an obstacle.
func (t *Terrain) Clearance(p Point) float64 {
	best := math.Inf(1)
	for _, c := range t.Circles {
		if d := p.Dist(Point{X: c.X, Y: c.Y}) - c.R; d < best {
			best = d
		}
	}
	return best
}

// Clone returns a deep copy safe to hand to another goroutine.
func (t *Terrain) Clone() *Terrain {
	out := &Terrain{Width: t.Width, Height: t.Height}
	out.Circles = append([]Circle(nil), t.Circles...)
	out.Holes = append([]Circle(nil), t.Holes...)
	return out
}

// GenerateOptions controls the random obstacle field.
type GenerateOptions struct {
	Width, Height float64
	Count         int
	MinRadius     float64
	MaxRadius     float64
	EdgeMargin    float64 // keep circle centres this far from the side walls
}

// Generate builds a random field of circles. Centres stay out of the
// EdgeMargin strips so both teams have somewhere to stand.
func Generate(rng *rand.Rand, opts GenerateOptions) *Terrain {
	circles := make([]Circle, 0, opts.Count)
	span := opts.Width - 2*opts.EdgeMargin
	if span <= 0 {
		span = opts.Width
	}
	for i := 0; i < opts.Count; i++ {
		r := opts.MinRadius
		if opts.MaxRadius > opts.MinRadius {
			r += rng.Float64() * (opts.MaxRadius - opts.MinRadius)
		}
		circles = append(circles, Circle{
			X: (opts.Width-span)/2 + rng.Float64()*span,
			Y: rng.Float64() * opts.Height,
			R: r,
		})
	}
	return New(opts.Width, opts.Height, circles)
}
