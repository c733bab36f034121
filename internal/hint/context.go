package hint

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/terrain"
)

const (
	maxObstacles   = 8
	obstacleWindow = 6.0 // function units either side of the direct line
)

// BuildContext converts a request into the local-frame description handed to
// strategies.
func BuildContext(req Request) Context {
	frame := shot.Frame(req.Game, req.Shooter, req.Angle)
	dx, dy := frame.ToLocal(req.Target.Pos)

	c := Context{
		Mode:        req.Mode.String(),
		DX:          dx,
		DY:          dy,
		Distance:    math.Hypot(dx, dy),
		Angle:       frame.ClampAngle(req.Angle),
		MaxAttempts: req.Game.MaxHintAttempts,
	}
	if math.Abs(dx) > 1e-9 {
		c.Slope = dy / dx
		c.Curvature = -1 / math.Abs(dx)
	}
	for _, t := range req.Targets {
		if t.Team != req.Shooter.Team {
			c.EnemiesAlive++
		}
	}
	c.NeedsMulti = c.EnemiesAlive >= 2

	for _, circle := range req.Terrain.Circles {
		cx, cy := frame.ToLocal(terrain.Point{X: circle.X, Y: circle.Y})
		r := circle.R / frame.Scale
		gap := lineDist(cx, cy, dx, dy) - r
		if gap > obstacleWindow {
			continue
		}
		c.Obstacles = append(c.Obstacles, Obstacle{X: round(cx), Y: round(cy), R: round(r), Clearance: round(gap)})
	}
	sort.Slice(c.Obstacles, func(i, j int) bool { return c.Obstacles[i].Clearance < c.Obstacles[j].Clearance })
	if len(c.Obstacles) > maxObstacles {
		c.Obstacles = c.Obstacles[:maxObstacles]
	}
	return c
}

// lineDist is the distance from (px, py) to the segment from the origin to
// (dx, dy).
func lineDist(px, py, dx, dy float64) float64 {
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(px, py)
	}
	t := math.Max(0, math.Min(1, (px*dx+py*dy)/l2))
	return math.Hypot(px-t*dx, py-t*dy)
}

// Substitute replaces the template placeholders in candidate with the
// context's numbers.
func Substitute(candidate string, c Context) string {
	return strings.NewReplacer(
		"{dx}", Number(c.DX),
		"{dy}", Number(c.DY),
		"{slope}", Number(c.Slope),
		"{a}", Number(c.Curvature),
	).Replace(candidate)
}

// Number formats v with at most four decimals. Negative numbers are
// bracketed so they can be dropped into any position of an expression.
func Number(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	d := decimal.NewFromFloat(v).Round(4)
	if d.IsNegative() {
		return "(" + d.String() + ")"
	}
	return d.String()
}

func round(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(3).Float64()
	return f
}

// clean returns the first line of raw that is not a code fence, without
// surrounding backticks.
func clean(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		return strings.TrimSpace(strings.Trim(line, "`"))
	}
	return ""
}
