package hint

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/funcwar-server/internal/config"
	"github.com/MJE43/funcwar-server/internal/function"
	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/terrain"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

var quiet = log.New(io.Discard, "", 0)

// scenario puts the shooter at (100, 300) and enemies at the given local
// coordinates.
func scenario(mode trajectory.Mode, enemies ...[2]float64) Request {
	g := config.DefaultGame()
	shooter := shot.Target{ClientID: "me", Team: 1, Soldier: 0, Pos: terrain.Point{X: 100, Y: 300}}
	frame := shot.Frame(g, shooter, 0)
	req := Request{
		Mode:    mode,
		Terrain: terrain.New(g.PlaneWidth, g.PlaneHeight, nil),
		Shooter: shooter,
		Game:    g,
		Targets: []shot.Target{shooter},
	}
	for i, e := range enemies {
		t := shot.Target{ClientID: "them", Team: 2, Soldier: i, Pos: frame.ToWorld(e[0], e[1])}
		req.Targets = append(req.Targets, t)
		if i == 0 {
			req.Target = t
		}
	}
	return req
}

func TestValidateExampleScenario(t *testing.T) {
	req := scenario(trajectory.Normal, [2]float64{10, 4})
	c := BuildContext(req)

	ok, reason := Validate(req, c, "0.4*x")
	assert.True(t, ok, "0.4*x rejected: %s", reason)

	ok, reason = Validate(req, c, "1/(x-10)")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	ok, _ = Validate(req, c, "sin(")
	assert.False(t, ok)
}

func TestValidateRejectsTerrainBlockedPath(t *testing.T) {
	req := scenario(trajectory.Normal, [2]float64{10, 4})
	frame := shot.Frame(req.Game, req.Shooter, 0)
	mid := frame.ToWorld(5, 2)
	req.Terrain = terrain.New(req.Game.PlaneWidth, req.Game.PlaneHeight, []terrain.Circle{{X: mid.X, Y: mid.Y, R: 20}})
	c := BuildContext(req)

	v := evaluate(req, c, "0.4*x")
	assert.False(t, v.accepted)
	assert.True(t, v.collided)
	require.NotEmpty(t, c.Obstacles)
	assert.Less(t, c.Obstacles[0].Clearance, 0.0)
}

func TestValidateRejectsTerrainStopNearTarget(t *testing.T) {
	req := scenario(trajectory.Normal, [2]float64{10, 4})
	frame := shot.Frame(req.Game, req.Shooter, 0)
	rock := frame.ToWorld(9, 3.6)
	req.Terrain = terrain.New(req.Game.PlaneWidth, req.Game.PlaneHeight,
		[]terrain.Circle{{X: rock.X, Y: rock.Y, R: 0.4 * frame.Scale}})
	c := BuildContext(req)

	// The path ends inside proximity range of the target but never reaches it.
	v := evaluate(req, c, "0.4*x")
	assert.False(t, v.accepted)
	assert.True(t, v.collided)
	assert.Zero(t, v.enemyHits)
	assert.Less(t, v.closest*frame.Scale, req.Game.HintProximityFactor*req.Game.ExplosionRadius)
}

func TestValidateAllowsTerrainStopAfterTheTarget(t *testing.T) {
	req := scenario(trajectory.Normal, [2]float64{10, 4})
	frame := shot.Frame(req.Game, req.Shooter, 0)
	wall := frame.ToWorld(16, 6.4)
	req.Terrain = terrain.New(req.Game.PlaneWidth, req.Game.PlaneHeight,
		[]terrain.Circle{{X: wall.X, Y: wall.Y, R: 30}})
	c := BuildContext(req)

	v := evaluate(req, c, "0.4*x")
	assert.True(t, v.accepted, v.reason)
	assert.False(t, v.collided)
	assert.Equal(t, 1, v.enemyHits)
}

func TestGenerateAcceptsTemplatedStrategyAnswer(t *testing.T) {
	req := scenario(trajectory.Normal, [2]float64{10, 4})
	strategy := StrategyFunc(func(context.Context, Context) (string, error) {
		return "```\n{slope}*x\n```", nil
	})

	resp := NewAdvisor(strategy, quiet).Generate(context.Background(), req)
	assert.Equal(t, SourceStrategy, resp.Source)
	assert.Equal(t, "0.4*x", resp.Function)
	assert.Equal(t, 1, resp.Attempts)
	assert.True(t, resp.Accepted)
}

func TestGenerateBoundsStrategyCalls(t *testing.T) {
	req := scenario(trajectory.Normal, [2]float64{10, 4})
	var calls, progress int32
	var lastFeedback int
	req.Progress = func(attempt, max int) { atomic.AddInt32(&progress, 1) }
	strategy := StrategyFunc(func(_ context.Context, c Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		lastFeedback = len(c.Feedback)
		return "1/(x-10)", nil
	})

	resp := NewAdvisor(strategy, quiet).Generate(context.Background(), req)
	assert.Equal(t, int32(req.Game.MaxHintAttempts), calls)
	assert.Equal(t, int32(req.Game.MaxHintAttempts), progress)
	assert.Equal(t, req.Game.MaxHintAttempts-1, lastFeedback)
	assert.Equal(t, req.Game.MaxHintAttempts, resp.Attempts)
	assert.Equal(t, SourceSearch, resp.Source)
	_, err := function.Parse(resp.Function)
	require.NoError(t, err)
	ok, reason := Validate(req, BuildContext(req), resp.Function)
	assert.True(t, ok, reason)
}

func TestGenerateRetriesAfterStrategyError(t *testing.T) {
	req := scenario(trajectory.Normal, [2]float64{10, 4})
	var calls int32
	var feedback []Feedback
	strategy := StrategyFunc(func(_ context.Context, c Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "", errors.New("malformed response")
		}
		feedback = c.Feedback
		return "{slope}*x", nil
	})
	resp := NewAdvisor(strategy, quiet).Generate(context.Background(), req)
	assert.Equal(t, int32(2), calls)
	assert.Equal(t, SourceStrategy, resp.Source)
	assert.Equal(t, "0.4*x", resp.Function)
	assert.Equal(t, 2, resp.Attempts)
	require.Len(t, feedback, 1)
	assert.Contains(t, feedback[0].Reason, "malformed response")
}

func TestGenerateFallsBackWhenStrategyKeepsFailing(t *testing.T) {
	req := scenario(trajectory.Normal, [2]float64{10, 4})
	var calls int32
	strategy := StrategyFunc(func(context.Context, Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("backend down")
	})
	resp := NewAdvisor(strategy, quiet).Generate(context.Background(), req)
	assert.Equal(t, int32(req.Game.MaxHintAttempts), calls)
	assert.Equal(t, SourceSearch, resp.Source)
}

func TestGenerateStopsStrategyWhenContextDone(t *testing.T) {
	req := scenario(trajectory.Normal, [2]float64{10, 4})
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	strategy := StrategyFunc(func(context.Context, Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return "", context.Canceled
	})
	resp := NewAdvisor(strategy, quiet).Generate(ctx, req)
	assert.Equal(t, int32(1), calls)
	assert.Equal(t, SourceSearch, resp.Source)
}

func TestGenerateFindsMultiKillWithTwoEnemies(t *testing.T) {
	req := scenario(trajectory.Normal, [2]float64{10, 4}, [2]float64{20, 2})
	c := BuildContext(req)
	require.True(t, c.NeedsMulti)

	// A straight line through the first enemy is no longer good enough.
	ok, _ := Validate(req, c, "0.4*x")
	assert.False(t, ok)

	resp := NewAdvisor(nil, quiet).Generate(context.Background(), req)
	assert.Equal(t, SourceSearch, resp.Source)
	ok, reason := Validate(req, c, resp.Function)
	assert.True(t, ok, "%s: %s", resp.Function, reason)
}

func TestGenerateFallsBackToBestEffortThenBaseline(t *testing.T) {
	// Target behind the shooter: the search family is empty.
	req := scenario(trajectory.Normal, [2]float64{-5, 2})

	flat := StrategyFunc(func(context.Context, Context) (string, error) { return "0", nil })
	resp := NewAdvisor(flat, quiet).Generate(context.Background(), req)
	assert.Equal(t, SourceBestEffort, resp.Source)
	assert.Equal(t, "0", resp.Function)
	assert.False(t, resp.Accepted)

	resp = NewAdvisor(nil, quiet).Generate(context.Background(), req)
	assert.Equal(t, SourceBaseline, resp.Source)
	_, err := function.Parse(resp.Function)
	require.NoError(t, err)
}

func TestGenerateSecondOrderSearch(t *testing.T) {
	req := scenario(trajectory.SecondOrderODE, [2]float64{12, 3})
	req.Angle = 0.6
	resp := NewAdvisor(nil, quiet).Generate(context.Background(), req)
	assert.Equal(t, SourceSearch, resp.Source)
	ok, reason := Validate(req, BuildContext(req), resp.Function)
	assert.True(t, ok, "%s: %s", resp.Function, reason)
}

func TestBaseline(t *testing.T) {
	assert.Equal(t, "0.5*x", Baseline(trajectory.Normal, 10, 5))
	assert.Equal(t, "2.5*x", Baseline(trajectory.Normal, 1, 40))
	assert.Equal(t, "(-0.2)", Baseline(trajectory.FirstOrderODE, 10, -2))
	assert.Equal(t, "0", Baseline(trajectory.SecondOrderODE, 10, 5))
	for _, mode := range []trajectory.Mode{trajectory.Normal, trajectory.FirstOrderODE, trajectory.SecondOrderODE} {
		_, err := function.Parse(Baseline(mode, 7, -3))
		assert.NoError(t, err)
	}
}

func TestSubstituteAndClean(t *testing.T) {
	c := Context{DX: 10, DY: -2.5, Slope: -0.25, Curvature: -0.1}
	assert.Equal(t, "(-0.25)*x+(-0.1)*x*(x-10)", Substitute("{slope}*x+{a}*x*(x-{dx})", c))
	assert.Equal(t, "sin(x)", clean("```text\nsin(x)\n```"))
	assert.Equal(t, "0.4*x", clean("  `0.4*x`  "))
	assert.Equal(t, "", clean("```\n```"))
	assert.Equal(t, "0", Number(0))
	assert.Equal(t, "1.2346", Number(1.23456))
}
