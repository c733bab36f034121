package hint

import (
	"math"

	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

// verdict is the outcome of checking one candidate against the simulator.
// Distances are in function units.
type verdict struct {
	function  string
	simulated bool
	accepted  bool
	collided  bool
	closest   float64
	progress  float64
	enemyHits int
	stopX     float64
	stopY     float64
	reason    string
}

// Validate runs candidate through the shot simulator and applies the hint
// acceptance rules: no terrain stop before the path hits the target, enough
// forward progress, a close enough approach and, against two or more living
// enemies, at least two enemy hits.
func Validate(req Request, c Context, candidate string) (accepted bool, reason string) {
	v := evaluate(req, c, candidate)
	return v.accepted, v.reason
}

func evaluate(req Request, c Context, candidate string) verdict {
	v := verdict{function: candidate, closest: math.Inf(1)}
	res, err := shot.Simulate(shot.Request{
		Mode:     req.Mode,
		Function: candidate,
		Terrain:  req.Terrain,
		Shooter:  req.Shooter,
		Targets:  req.Targets,
		Angle:    req.Angle,
		Game:     req.Game,
	})
	if err != nil {
		v.reason = err.Error()
		return v
	}
	v.simulated = true

	scale := res.Frame.Scale
	closestPx, _ := res.ClosestApproach(req.Target.Pos)
	v.closest = closestPx / scale
	for _, p := range res.Path {
		if x, _ := res.Frame.ToLocal(p); x > v.progress {
			v.progress = x
		}
	}
	v.stopX, v.stopY = res.Frame.ToLocal(res.Path[len(res.Path)-1])
	v.enemyHits = len(res.EnemyHits(req.Shooter.Team))

	// A terrain stop only counts once the path has passed through the target.
	proximityPx := req.Game.HintProximityFactor * req.Game.ExplosionRadius
	v.collided = res.Stop == trajectory.StopTerrain && !hitsTarget(res.Hits, req.Target)

	switch {
	case v.collided:
		v.reason = "blocked by terrain before reaching the target"
	case c.DX > 0 && v.progress < req.Game.HintProgressRatio*c.DX:
		v.reason = "stopped short of the target"
	case closestPx > proximityPx:
		v.reason = "missed the target"
	case c.NeedsMulti && v.enemyHits < 2:
		v.reason = "needs to hit at least two enemy soldiers"
	default:
		v.accepted = true
	}
	return v
}

func hitsTarget(hits []shot.Hit, t shot.Target) bool {
	for _, h := range hits {
		if h.TargetClientID == t.ClientID && h.SoldierIndex == t.Soldier {
			return true
		}
	}
	return false
}

func (v verdict) feedback() Feedback {
	fb := Feedback{
		Candidate: v.function,
		Collided:  v.collided,
		Reason:    v.reason,
	}
	if v.simulated {
		fb.ClosestApproach = round(v.closest)
		fb.StopX = round(v.stopX)
		fb.StopY = round(v.stopY)
	}
	return fb
}
