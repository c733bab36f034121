package terrain

import (
	"math"
	"math/rand"
	"testing"
)

func TestCollidesOutOfBounds(t *testing.T) {
	tr := New(100, 50, nil)
	for _, p := range []Point{{-1, 10}, {101, 10}, {10, -0.5}, {10, 51}} {
		if !tr.Collides(p) {
			t.Errorf("expected %v to collide", p)
		}
	}
	if tr.Collides(Point{50, 25}) {
		t.Errorf("empty field should not collide inside bounds")
	}
}

func TestClampNeverReturnsNaN(t *testing.T) {
	tr := New(100, 50, nil)
	got := tr.Clamp(Point{X: math.NaN(), Y: math.Inf(1)})
	if got != (Point{X: 0, Y: 50}) {
		t.Fatalf("Clamp = %v", got)
	}
}

func TestCarvingUnblocksOnlyInsideHole(t *testing.T) {
	tr := New(200, 200, []Circle{{X: 100, Y: 100, R: 40}})
	inside := Point{X: 100, Y: 100}
	edge := Point{X: 130, Y: 100}

	if !tr.Collides(inside) || !tr.Collides(edge) {
		t.Fatalf("points inside the circle must collide before carving")
	}

	tr.AddHole(Circle{X: 100, Y: 100, R: 20})
	if tr.Collides(inside) {
		t.Errorf("carved point still collides")
	}
	if !tr.Collides(edge) {
		t.Errorf("point outside every hole stopped colliding")
	}

	// Holes never remove collision outside the circle they overlap.
	tr.AddHole(Circle{X: 300, Y: 300, R: 10})
	if !tr.Collides(edge) {
		t.Errorf("unrelated hole changed collision")
	}
	if len(tr.Holes) != 2 {
		t.Errorf("holes are append-only, got %d", len(tr.Holes))
	}
}

func TestHoleOutsideObstacleIsNotSolid(t *testing.T) {
	tr := New(200, 200, nil)
	tr.AddHole(Circle{X: 50, Y: 50, R: 30})
	if tr.Solid(Point{50, 50}) {
		t.Errorf("a hole must not create terrain")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tr := New(200, 200, []Circle{{X: 10, Y: 10, R: 5}})
	cp := tr.Clone()
	cp.AddHole(Circle{X: 10, Y: 10, R: 6})
	if len(tr.Holes) != 0 {
		t.Fatalf("clone shares hole slice with original")
	}
	if !tr.Collides(Point{10, 10}) || cp.Collides(Point{10, 10}) {
		t.Fatalf("clone and original disagree unexpectedly")
	}
}

func TestClearance(t *testing.T) {
	tr := New(200, 200, []Circle{{X: 100, Y: 100, R: 10}})
	if got := tr.Clearance(Point{X: 130, Y: 100}); math.Abs(got-20) > 1e-9 {
		t.Errorf("clearance = %v, want 20", got)
	}
	if got := New(10, 10, nil).Clearance(Point{}); !math.IsInf(got, 1) {
		t.Errorf("empty field clearance = %v", got)
	}
}

func TestGenerateRespectsOptions(t *testing.T) {
	opts := GenerateOptions{Width: 770, Height: 450, Count: 14, MinRadius: 15, MaxRadius: 60, EdgeMargin: 120}
	tr := Generate(rand.New(rand.NewSource(7)), opts)
	if len(tr.Circles) != opts.Count {
		t.Fatalf("got %d circles", len(tr.Circles))
	}
	for _, c := range tr.Circles {
		if c.R < opts.MinRadius || c.R > opts.MaxRadius {
			t.Errorf("radius %v out of range", c.R)
		}
		if c.X < opts.EdgeMargin || c.X > opts.Width-opts.EdgeMargin {
			t.Errorf("centre x %v inside edge margin", c.X)
		}
		if c.Y < 0 || c.Y > opts.Height {
			t.Errorf("centre y %v out of bounds", c.Y)
		}
	}

	again := Generate(rand.New(rand.NewSource(7)), opts)
	for i := range tr.Circles {
		if tr.Circles[i] != again.Circles[i] {
			t.Fatalf("same seed produced different fields")
		}
	}
}
