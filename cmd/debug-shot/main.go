// Command debug-shot simulates a single shot against a generated field and
// prints the path, stop reason and hits.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/MJE43/funcwar-server/internal/config"
	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/terrain"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

func main() {
	fn := flag.String("fn", "sin(x)", "function to fire")
	modeName := flag.String("mode", "normal", "normal, ode1 or ode2")
	team := flag.Int("team", 1, "shooter team (1 fires right, 2 fires left)")
	x := flag.Float64("x", 100, "shooter x in world pixels")
	y := flag.Float64("y", 225, "shooter y in world pixels")
	angle := flag.Float64("angle", 0, "launch angle in radians (ode2 only)")
	seed := flag.Int64("seed", 0, "terrain seed; 0 fires over an empty field")
	target := flag.String("target", "", "optional enemy soldier at `x,y`")
	every := flag.Int("every", 10, "print every nth path point")
	flag.Parse()

	g := config.DefaultGame()
	mode, err := trajectory.ParseMode(*modeName)
	if err != nil {
		fail(err)
	}

	field := terrain.New(g.PlaneWidth, g.PlaneHeight, nil)
	if *seed != 0 {
		field = terrain.Generate(rand.New(rand.NewSource(*seed)), terrain.GenerateOptions{
			Width:      g.PlaneWidth,
			Height:     g.PlaneHeight,
			Count:      g.CircleCount,
			MinRadius:  g.MinCircleRadius,
			MaxRadius:  g.MaxCircleRadius,
			EdgeMargin: g.PlaneWidth * 0.2,
		})
	}

	shooter := shot.Target{ClientID: "shooter", Team: *team, Pos: terrain.Point{X: *x, Y: *y}}
	var targets []shot.Target
	if *target != "" {
		var tx, ty float64
		if _, err := fmt.Sscanf(*target, "%g,%g", &tx, &ty); err != nil {
			fail(fmt.Errorf("bad -target %q: %w", *target, err))
		}
		targets = append(targets, shot.Target{ClientID: "enemy", Team: 3 - *team, Pos: terrain.Point{X: tx, Y: ty}})
	}

	fmt.Printf("Function: %s (%s)\n", *fn, mode)
	fmt.Printf("Shooter: team %d at (%.1f, %.1f)\n", *team, *x, *y)
	fmt.Printf("Terrain: %d circles\n", len(field.Circles))

	res, err := shot.Simulate(shot.Request{
		Mode:     mode,
		Function: *fn,
		Terrain:  field,
		Shooter:  shooter,
		Targets:  targets,
		Angle:    *angle,
		Game:     g,
	})
	if err != nil {
		fail(err)
	}

	n := *every
	if n < 1 {
		n = 1
	}
	fmt.Println("\nPath:")
	for i, p := range res.Path {
		if i%n == 0 || i == len(res.Path)-1 {
			fmt.Printf("  %4d  x=%8.2f  y=%8.2f\n", i, p.X, p.Y)
		}
	}
	fmt.Printf("\nPoints: %d\n", len(res.Path))
	fmt.Printf("Stop: %s\n", res.Stop)
	fmt.Printf("Fire angle: %.4f\n", res.FireAngle)
	fmt.Printf("Explosion: (%.1f, %.1f) r=%.0f\n", res.Explosion.X, res.Explosion.Y, res.Explosion.R)
	fmt.Printf("Flight time: %s\n", shot.Offset(g, len(res.Path)-1))
	for _, h := range res.Hits {
		fmt.Printf("Hit: %s soldier %d at step %d\n", h.TargetClientID, h.SoldierIndex, h.KillStep)
	}
	if len(res.Hits) == 0 {
		fmt.Println("Hits: none")
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "debug-shot:", err)
	os.Exit(1)
}
