package game

import (
	"math/rand"

	"github.com/MJE43/funcwar-server/internal/config"
	"github.com/MJE43/funcwar-server/internal/terrain"
)

const placementTries = 200

// generateTerrain builds the obstacle field for a new match. Circle centres
// keep out of the outer fifth on each side, where soldiers stand.
func generateTerrain(rng *rand.Rand, g config.Game) *terrain.Terrain {
	return terrain.Generate(rng, terrain.GenerateOptions{
		Width:      g.PlaneWidth,
		Height:     g.PlaneHeight,
		Count:      g.CircleCount,
		MinRadius:  g.MinCircleRadius,
		MaxRadius:  g.MaxCircleRadius,
		EdgeMargin: g.PlaneWidth * 0.2,
	})
}

// placeSoldiers puts every soldier on its team's side of the field, clear of
// obstacles and of each other. When no clear spot turns up the last
// candidate is used and a crater is carved around it.
func placeSoldiers(rng *rand.Rand, t *terrain.Terrain, g config.Game, players []*Player) {
	clear := 2 * g.HitRadius
	var placed []terrain.Point

	for _, p := range players {
		lo, hi := clear, t.Width*0.3
		if p.Team == 2 {
			lo, hi = t.Width*0.7, t.Width-clear
		}
		p.Soldiers = make([]*Soldier, g.SoldiersPerPlayer)
		for i := range p.Soldiers {
			var pos terrain.Point
			ok := false
			for try := 0; try < placementTries && !ok; try++ {
				pos = terrain.Point{
					X: lo + rng.Float64()*(hi-lo),
					Y: t.Height*0.15 + rng.Float64()*t.Height*0.7,
				}
				ok = !t.Solid(pos) && t.Clearance(pos) >= clear && farFrom(pos, placed, 3*g.HitRadius)
			}
			if !ok {
				t.AddHole(terrain.Circle{X: pos.X, Y: pos.Y, R: clear})
			}
			placed = append(placed, pos)
			p.Soldiers[i] = &Soldier{Pos: pos, Alive: true}
		}
	}
}

func farFrom(p terrain.Point, others []terrain.Point, d float64) bool {
	for _, o := range others {
		if p.Dist(o) < d {
			return false
		}
	}
	return true
}
