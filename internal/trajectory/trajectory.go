// Package trajectory turns a compiled function into a projectile path.
//
// Integration happens in the shooter's local frame: function units, origin
// at the shooter, x pointing toward the enemy side and y pointing up. Each
// sample is mapped to world pixels before the terrain checks, so the same
// function draws the same shape wherever the shooter stands.
package trajectory

import (
	"fmt"
	"math"
	"strings"

	"github.com/MJE43/funcwar-server/internal/function"
	"github.com/MJE43/funcwar-server/internal/terrain"
)

// Mode selects how the function is interpreted.
type Mode int

const (
	// Normal plots y = f(x), shifted so the curve starts at the shooter.
	Normal Mode = iota
	// FirstOrderODE integrates y' = f(x, y) from y(0) = 0.
	FirstOrderODE
	// SecondOrderODE integrates y'' = f(x, y, y') from y(0) = 0 and
	// y'(0) = tan(angle).
	SecondOrderODE
)

var modeNames = [...]string{"normal", "ode1", "ode2"}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts the names produced by String plus a few aliases.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMode maps a client-supplied mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "function":
		return Normal, nil
	case "ode1", "first_order", "firstorder":
		return FirstOrderODE, nil
	case "ode2", "second_order", "secondorder":
		return SecondOrderODE, nil
	}
	return Normal, fmt.Errorf("trajectory: unknown mode %q", s)
}

// Allows reports whether a variable may appear in functions for this mode.
func (m Mode) Allows(k function.Kind) bool {
	switch k {
	case function.VarY:
		return m != Normal
	case function.VarDY:
		return m == SecondOrderODE
	}
	return true
}

// StopReason says why integration ended.
type StopReason int

const (
	StopMaxSteps StopReason = iota
	StopBounds
	StopTerrain
	StopNonFinite
)

func (r StopReason) String() string {
	switch r {
	case StopBounds:
		return "bounds"
	case StopTerrain:
		return "terrain"
	case StopNonFinite:
		return "non-finite"
	default:
		return "max-steps"
	}
}

// Params fixes the frame and the integration limits for one shot.
type Params struct {
	Origin    terrain.Point // shooter position in world pixels
	Direction float64       // +1 fires toward larger x, -1 toward smaller x
	Scale     float64       // world pixels per function unit
	Step      float64       // function units per step
	MaxSteps  int
	SubStepPx float64
	Angle     float64 // launch angle in radians, used by SecondOrderODE
	MaxAngle  float64
}

// ToWorld maps a local point to world pixels.
func (p Params) ToWorld(x, y float64) terrain.Point {
	return terrain.Point{X: p.Origin.X + p.Direction*x*p.Scale, Y: p.Origin.Y - y*p.Scale}
}

// ToLocal is the inverse of ToWorld.
func (p Params) ToLocal(w terrain.Point) (x, y float64) {
	return (w.X - p.Origin.X) * p.Direction / p.Scale, (p.Origin.Y - w.Y) / p.Scale
}

// ClampAngle limits a launch angle to the open range (-MaxAngle, MaxAngle)
// so tan stays finite.
func (p Params) ClampAngle(a float64) float64 {
	if math.IsNaN(a) {
		return 0
	}
	return math.Max(-p.MaxAngle, math.Min(p.MaxAngle, a))
}

// Path is the integrated trajectory in world pixels. Points[0] is the
// shooter position; Steps[i] is the integration step Points[i] belongs to.
type Path struct {
	Points []terrain.Point
	Steps  []int
	Stop   StopReason
}

// Len returns the number of points.
func (p *Path) Len() int { return len(p.Points) }

// Last returns the final point; the path must be non-empty.
func (p *Path) Last() terrain.Point { return p.Points[len(p.Points)-1] }

// Integrate runs f in the given mode. It never fails: a path with fewer than
// two points means the function could not produce a shot (for example a
// non-finite value at the origin).
func Integrate(f *function.Function, mode Mode, p Params, t *terrain.Terrain) *Path {
	var next func(x float64) (float64, bool)

	switch mode {
	case FirstOrderODE:
		next = firstOrder(f, p.Step)
	case SecondOrderODE:
		next = secondOrder(f, p.Step, math.Tan(p.ClampAngle(p.Angle)))
	default:
		offset := -f.Eval(0, 0, 0)
		if !finite(offset) {
			return &Path{Stop: StopNonFinite}
		}
		next = func(x float64) (float64, bool) {
			y := f.Eval(x+p.Step, 0, 0) + offset
			return y, finite(y)
		}
	}

	w := walker{params: p, terrain: t}
	w.path.Points = append(w.path.Points, p.Origin)
	w.path.Steps = append(w.path.Steps, 0)

	x := 0.0
	for step := 1; step <= p.MaxSteps; step++ {
		y, ok := next(x)
		if !ok {
			w.path.Stop = StopNonFinite
			return &w.path
		}
		x += p.Step
		// Finite in function units can still overflow once scaled.
		to := p.ToWorld(x, y)
		if !finite(to.X) || !finite(to.Y) {
			w.path.Stop = StopNonFinite
			return &w.path
		}
		if !w.advance(step, to) {
			return &w.path
		}
	}
	w.path.Stop = StopMaxSteps
	return &w.path
}

// firstOrder returns a classical RK4 stepper for y' = f(x, y).
func firstOrder(f *function.Function, h float64) func(float64) (float64, bool) {
	y := 0.0
	return func(x float64) (float64, bool) {
		k1 := f.Eval(x, y, 0)
		k2 := f.Eval(x+h/2, y+h*k1/2, 0)
		k3 := f.Eval(x+h/2, y+h*k2/2, 0)
		k4 := f.Eval(x+h, y+h*k3, 0)
		y += h / 6 * (k1 + 2*k2 + 2*k3 + k4)
		return y, finite(y)
	}
}

// secondOrder integrates the system (y, v)' = (v, f(x, y, v)) with RK4.
func secondOrder(f *function.Function, h, v0 float64) func(float64) (float64, bool) {
	y, v := 0.0, v0
	return func(x float64) (float64, bool) {
		k1y, k1v := v, f.Eval(x, y, v)
		k2y, k2v := v+h*k1v/2, f.Eval(x+h/2, y+h*k1y/2, v+h*k1v/2)
		k3y, k3v := v+h*k2v/2, f.Eval(x+h/2, y+h*k2y/2, v+h*k2v/2)
		k4y, k4v := v+h*k3v, f.Eval(x+h, y+h*k3y, v+h*k3v)
		y += h / 6 * (k1y + 2*k2y + 2*k3y + k4y)
		v += h / 6 * (k1v + 2*k2v + 2*k3v + k4v)
		return y, finite(y) && finite(v)
	}
}

type walker struct {
	params  Params
	terrain *terrain.Terrain
	path    Path
}

// advance appends the segment ending at to, sub-sampling it so thin
// obstacles between samples are not skipped. It returns false once the path
// has ended.
func (w *walker) advance(step int, to terrain.Point) bool {
	from := w.path.Last()
	d := from.Dist(to)
	// Anything longer than this has left the field; shorten it along the same
	// line so the sub-sample count stays bounded.
	if lim := w.terrain.Width + w.terrain.Height; d > lim {
		f := lim / d
		to = terrain.Point{X: from.X + (to.X-from.X)*f, Y: from.Y + (to.Y-from.Y)*f}
		d = lim
	}
	n := 1
	if d > w.params.SubStepPx {
		n = int(math.Ceil(d / w.params.SubStepPx))
	}
	for k := 1; k <= n; k++ {
		frac := float64(k) / float64(n)
		q := terrain.Point{X: from.X + (to.X-from.X)*frac, Y: from.Y + (to.Y-from.Y)*frac}
		if !w.terrain.InBounds(q) {
			w.push(step, w.terrain.Clamp(q))
			w.path.Stop = StopBounds
			return false
		}
		if w.terrain.Solid(q) {
			w.push(step, q)
			w.path.Stop = StopTerrain
			return false
		}
	}
	w.push(step, to)
	return true
}

func (w *walker) push(step int, p terrain.Point) {
	w.path.Points = append(w.path.Points, p)
	w.path.Steps = append(w.path.Steps, step)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
