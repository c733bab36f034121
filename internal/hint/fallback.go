package hint

import (
	"context"
	"math"

	"github.com/MJE43/funcwar-server/internal/scan"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

const baselineSlopeCap = 2.5

// curvatures are the parabolic adjustments tried by the search, in units of
// 1/dx so the family scales with distance.
var curvatures = []float64{0, -0.25, 0.25, -0.5, 0.5, -1, 1, -1.5, -2, -3, -4, 2, 3}

// Baseline is the deterministic shot the bot takes: a capped straight line
// toward (dx, dy) in the local frame for the first two modes, and a flat
// y'' = 0 for the second-order mode, which then follows the launch angle.
func Baseline(mode trajectory.Mode, dx, dy float64) string {
	slope := 0.0
	if dx > 0.5 {
		slope = math.Max(-baselineSlopeCap, math.Min(baselineSlopeCap, dy/dx))
	}
	switch mode {
	case trajectory.FirstOrderODE:
		return Number(slope)
	case trajectory.SecondOrderODE:
		return "0"
	default:
		return Number(slope) + "*x"
	}
}

// searchFamily lists candidates of the form k*x + c*x*(x-dx), all passing
// through the target, written for the request's mode. Extra members bend
// the curve through each other living enemy for a chance at a multi-kill.
func searchFamily(req Request, c Context) []string {
	dx, dy := c.DX, c.DY
	if dx <= 0 {
		return nil
	}
	k := dy / dx

	cs := make([]float64, 0, len(curvatures)+len(req.Targets))
	for _, m := range curvatures {
		cs = append(cs, m/dx)
	}
	frame := shotFrame(req)
	for _, t := range req.Targets {
		if t.Team == req.Shooter.Team || t == req.Target {
			continue
		}
		x2, y2 := frame.ToLocal(t.Pos)
		if x2 <= 0 || math.Abs(x2-dx) < 1e-6 {
			continue
		}
		cs = append(cs, (y2-k*x2)/(x2*(x2-dx)))
	}

	out := make([]string, 0, len(cs))
	switch req.Mode {
	case trajectory.FirstOrderODE:
		// y' of the same parabola
		for _, cv := range cs {
			out = append(out, Number(k)+"+"+Number(cv)+"*(2*x-"+Number(dx)+")")
		}
	case trajectory.SecondOrderODE:
		// The launch slope is fixed by the angle, so only one parabola
		// through the target exists; spread around it.
		t := math.Tan(c.Angle)
		exact := (dy - t*dx) / (dx * dx)
		for _, m := range []float64{1, 0.97, 1.03, 0.93, 1.07, 0.85, 1.15} {
			out = append(out, Number(2*exact*m))
		}
	default:
		for _, cv := range cs {
			if cv == 0 {
				out = append(out, Number(k)+"*x")
				continue
			}
			out = append(out, Number(k)+"*x+"+Number(cv)+"*x*(x-"+Number(dx)+")")
		}
	}
	return out
}

// search evaluates the family in parallel and returns the accepted
// candidate with the closest approach. Every verdict is appended to seen.
func (a *Advisor) search(ctx context.Context, req Request, c Context, seen *[]verdict) (string, bool) {
	family := searchFamily(req, c)
	if len(family) == 0 {
		return "", false
	}
	verdicts := make([]verdict, len(family))
	// Metric is the closest approach in function units; the scan keeps only
	// the single closest accepted candidate.
	proximity := req.Game.HintProximityFactor * req.Game.ExplosionRadius / shotFrame(req).Scale
	res, err := a.scanner.Scan(ctx, scan.Request{
		Count: len(family),
		Evaluate: func(_ context.Context, i int) scan.Outcome {
			v := evaluate(req, c, family[i])
			verdicts[i] = v
			return scan.Outcome{Metric: v.closest, OK: v.accepted}
		},
		TargetOp:  scan.OpLessEqual,
		TargetVal: proximity,
		Limit:     1,
		Timeout:   a.searchTimeout,
	})
	if err != nil {
		a.log.Printf("search failed err=%v", err)
		return "", false
	}
	for _, v := range verdicts {
		if v.function != "" {
			*seen = append(*seen, v)
		}
	}
	a.log.Printf("search evaluated=%d accepted=%d closest=%.3f timed_out=%v",
		res.Summary.TotalEvaluated, res.Summary.HitsFound, res.Summary.MinMetric, res.Summary.TimedOut)
	if len(res.Hits) == 0 {
		return "", false
	}
	return family[res.Hits[0].Index], true
}

// bestEffort picks the simulated, non-colliding candidate that came
// closest to the target.
func bestEffort(seen []verdict) (string, bool) {
	best := -1
	for i, v := range seen {
		if !v.simulated || v.collided {
			continue
		}
		if best < 0 || v.closest < seen[best].closest {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return seen[best].function, true
}
