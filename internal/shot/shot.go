// Package shot produces the authoritative outcome of one fire action: the
// path, the terminal explosion and every soldier the path passed over.
//
// Simulate is pure. The session calls it to commit a shot and the hint
// advisor calls it speculatively; neither the terrain nor the targets are
// modified.
package shot

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/MJE43/funcwar-server/internal/config"
	"github.com/MJE43/funcwar-server/internal/function"
	"github.com/MJE43/funcwar-server/internal/terrain"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

// ErrInvalidShot means the function produced no usable path from the
// shooter's position.
var ErrInvalidShot = errors.New("shot: function does not produce a trajectory")

// Target is a soldier that can be hit.
type Target struct {
	ClientID string
	Team     int
	Soldier  int
	Pos      terrain.Point
}

// Hit records the first path index at which a soldier was within the hit
// radius.
type Hit struct {
	TargetClientID string `json:"targetClientId"`
	Team           int    `json:"team"`
	SoldierIndex   int    `json:"soldierIndex"`
	KillStep       int    `json:"killStep"`
}

// Request describes one shot. Targets should hold only living soldiers; the
// shooter's own soldier is skipped if present.
type Request struct {
	Mode     trajectory.Mode
	Function string
	Terrain  *terrain.Terrain
	Shooter  Target
	Targets  []Target
	Angle    float64
	Game     config.Game
}

// Result is never modified after Simulate returns.
type Result struct {
	Function  string                `json:"function"`
	Mode      trajectory.Mode       `json:"mode"`
	FireAngle float64               `json:"fireAngle"`
	Path      []terrain.Point       `json:"path"`
	Explosion terrain.Circle        `json:"explosion"`
	Hits      []Hit                 `json:"hits"`
	Stop      trajectory.StopReason `json:"-"`
	Frame     trajectory.Params     `json:"-"`
}

// Direction is +1 for team 1, which stands on the left, and -1 for team 2.
func Direction(team int) float64 {
	if team == 2 {
		return -1
	}
	return 1
}

// Frame returns the integration parameters for a shooter.
func Frame(g config.Game, shooter Target, angle float64) trajectory.Params {
	return trajectory.Params{
		Origin:    shooter.Pos,
		Direction: Direction(shooter.Team),
		Scale:     g.Scale(),
		Step:      g.StepSize,
		MaxSteps:  g.MaxSteps,
		SubStepPx: g.SubStepPx,
		Angle:     angle,
		MaxAngle:  g.MaxAngle,
	}
}

// Simulate compiles the function once, integrates it and scans the path for
// hits. Parse failures are returned as *function.MalformedFunctionError.
func Simulate(req Request) (*Result, error) {
	fn, err := function.Parse(req.Function)
	if err != nil {
		return nil, err
	}
	for _, k := range []function.Kind{function.VarY, function.VarDY} {
		if fn.Uses(k) && !req.Mode.Allows(k) {
			return nil, &function.MalformedFunctionError{
				Input:  req.Function,
				Reason: fmt.Sprintf("%s is not available in %s mode", k, req.Mode),
			}
		}
	}

	frame := Frame(req.Game, req.Shooter, req.Angle)
	path := trajectory.Integrate(fn, req.Mode, frame, req.Terrain)
	if path.Len() < 2 {
		return nil, ErrInvalidShot
	}

	end := path.Last()
	res := &Result{
		Function:  req.Function,
		Mode:      req.Mode,
		FireAngle: frame.ClampAngle(req.Angle),
		Path:      path.Points,
		Explosion: terrain.Circle{X: end.X, Y: end.Y, R: req.Game.ExplosionRadius},
		Stop:      path.Stop,
		Frame:     frame,
	}
	res.Hits = detectHits(path.Points, req.Shooter, req.Targets, req.Game.HitRadius)
	return res, nil
}

func detectHits(path []terrain.Point, shooter Target, targets []Target, radius float64) []Hit {
	var hits []Hit
	for _, tg := range targets {
		if tg.ClientID == shooter.ClientID && tg.Soldier == shooter.Soldier {
			continue
		}
		for i := 1; i < len(path); i++ {
			if segmentDist(tg.Pos, path[i-1], path[i]) <= radius {
				hits = append(hits, Hit{
					TargetClientID: tg.ClientID,
					Team:           tg.Team,
					SoldierIndex:   tg.Soldier,
					KillStep:       i,
				})
				break
			}
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].KillStep < hits[b].KillStep })
	return hits
}

// segmentDist is the distance from p to the segment ab.
func segmentDist(p, a, b terrain.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return p.Dist(a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Dist(terrain.Point{X: a.X + t*dx, Y: a.Y + t*dy})
}

// Offset is how long clients take to draw the first n path points.
func Offset(g config.Game, n int) time.Duration {
	return time.Duration(float64(n) * float64(time.Second) / g.FunctionVelocity)
}

// EnemyHits returns the hits that landed on a team other than shooterTeam.
func (r *Result) EnemyHits(shooterTeam int) []Hit {
	var out []Hit
	for _, h := range r.Hits {
		if h.Team != shooterTeam {
			out = append(out, h)
		}
	}
	return out
}

// ClosestApproach returns the smallest distance between the path and p
// together with the path index where it occurs.
func (r *Result) ClosestApproach(p terrain.Point) (float64, int) {
	best, at := math.Inf(1), 0
	for i := 1; i < len(r.Path); i++ {
		if d := segmentDist(p, r.Path[i-1], r.Path[i]); d < best {
			best, at = d, i
		}
	}
	return best, at
}
