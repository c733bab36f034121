// Package hint suggests a function that would hit a chosen enemy soldier.
//
// A Strategy proposes candidate strings; the Advisor fills in template
// placeholders, validates each candidate with the real shot simulator and
// feeds numeric feedback back to the strategy until one is accepted or the
// attempt budget runs out. The advisor then falls back to a parallel search,
// the best candidate seen and finally the bot's baseline. It never touches
// session state; callers pass a snapshot.
package hint

import (
	"context"

	"github.com/MJE43/funcwar-server/internal/config"
	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/terrain"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

// Source records which stage produced a hint.
type Source string

const (
	SourceStrategy   Source = "strategy"
	SourceSearch     Source = "search"
	SourceBestEffort Source = "best_effort"
	SourceBaseline   Source = "baseline"
)

// Request is a snapshot of everything needed to plan a shot.
type Request struct {
	Mode    trajectory.Mode
	Terrain *terrain.Terrain
	Shooter shot.Target
	Angle   float64
	Target  shot.Target
	// Targets holds every living soldier, including the shooter's team.
	Targets []shot.Target
	Game    config.Game

	// Progress, when set, is called before each strategy attempt.
	Progress func(attempt, max int)
}

// Response is always usable: Function parses in the request's mode.
type Response struct {
	Function string `json:"function"`
	Source   Source `json:"source"`
	Attempts int    `json:"attempts"`
	Accepted bool   `json:"accepted"`
}

// Strategy proposes candidate functions. Implementations may return strings
// containing the placeholders {dx}, {dy}, {slope} and {a}.
type Strategy interface {
	Suggest(ctx context.Context, c Context) (string, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, c Context) (string, error)

func (f StrategyFunc) Suggest(ctx context.Context, c Context) (string, error) {
	return f(ctx, c)
}

// Context describes the shot in the shooter's local frame: function units,
// x toward the enemy side, y up.
type Context struct {
	Mode         string     `json:"mode"`
	DX           float64    `json:"dx"`
	DY           float64    `json:"dy"`
	Slope        float64    `json:"slope"`
	Curvature    float64    `json:"a"`
	Distance     float64    `json:"distance"`
	Angle        float64    `json:"angle"`
	EnemiesAlive int        `json:"enemiesAlive"`
	NeedsMulti   bool       `json:"needsMultiKill"`
	Obstacles    []Obstacle `json:"obstacles"`
	Feedback     []Feedback `json:"feedback,omitempty"`
	Attempt      int        `json:"attempt"`
	MaxAttempts  int        `json:"maxAttempts"`
}

// Obstacle is a terrain circle near the direct line to the target.
// Clearance is the gap between that line and the circle edge; negative means
// the line passes through it.
type Obstacle struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	R         float64 `json:"r"`
	Clearance float64 `json:"clearance"`
}

// Feedback explains why a previous candidate was rejected.
type Feedback struct {
	Candidate       string  `json:"candidate"`
	ClosestApproach float64 `json:"closestApproach"`
	Collided        bool    `json:"collided"`
	StopX           float64 `json:"stopX"`
	StopY           float64 `json:"stopY"`
	Reason          string  `json:"reason"`
}
